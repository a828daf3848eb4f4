package opportunity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/conclave/core"
)

func TestDetectMatchesExpertiseTags(t *testing.T) {
	d := NewStaticDetector()
	agent := core.Agent{ID: "analyst", Role: "Data Analyst", ExpertiseAreas: []string{"data", "forecasting"}}

	opps, err := d.Detect(context.Background(), agent, "sess-1", "Analyze the data and build a forecasting model")
	require.NoError(t, err)
	require.Len(t, opps, 2)
	for _, o := range opps {
		assert.Equal(t, "analyst", o.AgentID)
		assert.Equal(t, "expertise_match", o.Kind)
		assert.Equal(t, 3, o.Priority)
	}
}

func TestDetectBaselineOfferWhenNoMatch(t *testing.T) {
	d := NewStaticDetector()
	agent := core.Agent{ID: "planner", Role: "Planner", ExpertiseAreas: []string{"scheduling"}}

	opps, err := d.Detect(context.Background(), agent, "sess-1", "pick a color scheme")
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "general_support", opps[0].Kind)
	assert.Equal(t, 1, opps[0].Priority)
}

func TestDetectBaselineOfferDisabled(t *testing.T) {
	d := NewStaticDetector(func(o *Options) { o.BaselineOffer = false })
	agent := core.Agent{ID: "planner", Role: "Planner", ExpertiseAreas: []string{"scheduling"}}

	opps, err := d.Detect(context.Background(), agent, "sess-1", "pick a color scheme")
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestDetectHonorsContext(t *testing.T) {
	d := NewStaticDetector()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Detect(ctx, core.Agent{ID: "a"}, "sess-1", "request")
	assert.ErrorIs(t, err, context.Canceled)
}
