package ear

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// faceWithEyes builds a 68-point set with the given contours at the
// iBUG eye positions and filler points elsewhere.
func faceWithEyes(left, right []types.Point) types.LandmarkSet {
	lm := make(types.LandmarkSet, IBUG68.Points)
	for i := range lm {
		lm[i] = types.Point{X: float64(i), Y: float64(2 * i)}
	}
	copy(lm[IBUG68.LeftEye.Start:IBUG68.LeftEye.End], left)
	copy(lm[IBUG68.RightEye.Start:IBUG68.RightEye.End], right)
	return lm
}

func TestClassify_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		left      float64 // eyelid height for a 10px wide eye
		right     float64
		threshold float64
		wantState types.DriverState
		wantEAR   float64
	}{
		{"average below threshold", 3, 1, 0.22, types.Drowsy, 0.20},
		{"average above threshold", 3, 2, 0.22, types.Alert, 0.25},
		{"both eyes closed", 0, 0, 0.22, types.Drowsy, 0},
		{"wide open", 4, 4, 0.22, types.Alert, 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, avg, err := Classify(faceWithEyes(eyeWithHeight(tt.left), eyeWithHeight(tt.right)), tt.threshold)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, state)
			assert.InDelta(t, tt.wantEAR, avg, 1e-12)
		})
	}
}

func TestClassify_TieIsDrowsy(t *testing.T) {
	// 2.5/10 is exact in binary, so the average equals the threshold exactly.
	lm := faceWithEyes(eyeWithHeight(2.5), eyeWithHeight(2.5))

	state, avg, err := Classify(lm, 0.25)
	require.NoError(t, err)
	require.Equal(t, 0.25, avg)
	assert.Equal(t, types.Drowsy, state)

	state, _, err = Classify(lm, 0.2499999)
	require.NoError(t, err)
	assert.Equal(t, types.Alert, state)
}

func TestClassify_SymmetricInEyes(t *testing.T) {
	a, b := eyeWithHeight(3.3), eyeWithHeight(0.9)

	c, err := NewClassifier(IBUG68, DefaultThreshold)
	require.NoError(t, err)

	r1, err := c.Classify(faceWithEyes(a, b))
	require.NoError(t, err)
	r2, err := c.Classify(faceWithEyes(b, a))
	require.NoError(t, err)

	assert.Equal(t, r1.State, r2.State)
	assert.Equal(t, r1.Average, r2.Average)
	assert.Equal(t, r1.Left, r2.Right)
}

func TestClassify_UsesSchemeRanges(t *testing.T) {
	c, err := NewClassifier(IBUG68, DefaultThreshold)
	require.NoError(t, err)

	r, err := c.Classify(faceWithEyes(eyeWithHeight(3), eyeWithHeight(1)))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, r.Left, 1e-12)
	assert.InDelta(t, 0.1, r.Right, 1e-12)
}

func TestClassify_WrongPointCount(t *testing.T) {
	_, _, err := Classify(make(types.LandmarkSet, 5), DefaultThreshold)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = Classify(make(types.LandmarkSet, 81), DefaultThreshold)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestClassify_DegenerateEye(t *testing.T) {
	bad := eyeWithHeight(3)
	bad[3] = bad[0]

	_, _, err := Classify(faceWithEyes(eyeWithHeight(3), bad), DefaultThreshold)
	assert.ErrorIs(t, err, ErrDegenerateGeometry)
	assert.Contains(t, err.Error(), "right eye")
}

func TestNewClassifier_RejectsThreshold(t *testing.T) {
	for _, th := range []float64{0, -0.1} {
		_, err := NewClassifier(IBUG68, th)
		assert.ErrorIs(t, err, ErrInvalidThreshold, "threshold %v", th)
	}
}

func TestNewClassifier_RejectsBadScheme(t *testing.T) {
	s := IBUG68
	s.Points = 40
	_, err := NewClassifier(s, DefaultThreshold)
	assert.ErrorIs(t, err, ErrInvalidInput)

	s = IBUG68
	s.LeftEye = EyeRange{Start: 42, End: 47}
	_, err = NewClassifier(s, DefaultThreshold)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSchemeByName(t *testing.T) {
	s, err := SchemeByName(" IBUG-68 ")
	require.NoError(t, err)
	assert.Equal(t, IBUG68, s)

	_, err = SchemeByName("mediapipe-468")
	assert.ErrorIs(t, err, ErrUnknownScheme)
	assert.Contains(t, err.Error(), "ibug-68")
}

func TestStateFor(t *testing.T) {
	assert.Equal(t, types.Drowsy, StateFor(0.22, 0.22))
	assert.Equal(t, types.Alert, StateFor(0.2200001, 0.22))
	assert.Equal(t, types.Drowsy, StateFor(0, 0.22))
}
