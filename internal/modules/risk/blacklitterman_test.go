package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func twoAssetCov() *mat.SymDense {
	cov := mat.NewSymDense(2, nil)
	cov.SetSym(0, 0, 0.04)
	cov.SetSym(1, 1, 0.01)
	cov.SetSym(0, 1, 0.01)
	return cov
}

func TestViewReturn(t *testing.T) {
	// alpha * (score/100) * sigma
	assert.InDelta(t, 1.5*0.8*0.02, ViewReturn(80, 0.02, 1.5), 1e-9)
	assert.InDelta(t, -1.5*0.5*0.02, ViewReturn(-50, 0.02, 1.5), 1e-9)
	assert.InDelta(t, 0, ViewReturn(0, 0.02, 1.5), 1e-9)
}

func TestPosteriorWeights_ViewTiltsTowardItself(t *testing.T) {
	symbols := []string{"A", "B"}
	prior := map[string]float64{"A": 0.5, "B": 0.5}

	bullishB := View{Symbol: "B", Return: 0.05, Confidence: 0.8}
	weights, err := PosteriorWeights(symbols, prior, twoAssetCov(), bullishB, 0.05, 2.5)
	require.NoError(t, err)

	// A positive view on B raises B's posterior weight above its prior.
	assert.Greater(t, weights["B"], prior["B"])
}

func TestPosteriorWeights_NeutralViewKeepsPrior(t *testing.T) {
	symbols := []string{"A", "B"}
	prior := map[string]float64{"A": 0.5, "B": 0.5}

	// A view equal to B's own equilibrium return moves nothing.
	// pi_B = delta * (cov * w)_B = 2.5 * (0.01*0.5 + 0.01*0.5) = 0.025
	neutral := View{Symbol: "B", Return: 0.025, Confidence: 0.8}
	weights, err := PosteriorWeights(symbols, prior, twoAssetCov(), neutral, 0.05, 2.5)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, weights["A"], 1e-6)
	assert.InDelta(t, 0.5, weights["B"], 1e-6)
}

func TestPosteriorWeights_ConfidenceScalesTilt(t *testing.T) {
	symbols := []string{"A", "B"}
	prior := map[string]float64{"A": 0.5, "B": 0.5}
	view := View{Symbol: "B", Return: 0.05}

	view.Confidence = 0.9
	confident, err := PosteriorWeights(symbols, prior, twoAssetCov(), view, 0.05, 2.5)
	require.NoError(t, err)

	view.Confidence = 0.1
	hesitant, err := PosteriorWeights(symbols, prior, twoAssetCov(), view, 0.05, 2.5)
	require.NoError(t, err)

	assert.Greater(t, confident["B"], hesitant["B"])
}

func TestPosteriorWeights_Validation(t *testing.T) {
	symbols := []string{"A", "B"}
	prior := map[string]float64{"A": 0.5, "B": 0.5}
	view := View{Symbol: "Z", Return: 0.05, Confidence: 0.5}

	_, err := PosteriorWeights(symbols, prior, twoAssetCov(), view, 0.05, 2.5)
	assert.Error(t, err)

	view.Symbol = "B"
	_, err = PosteriorWeights(symbols, prior, twoAssetCov(), view, 0, 2.5)
	assert.Error(t, err)

	_, err = PosteriorWeights(nil, nil, twoAssetCov(), view, 0.05, 2.5)
	assert.Error(t, err)
}
