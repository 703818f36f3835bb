package entity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsPermanent(Permanent("bad request %d", 7)))
	assert.False(t, IsTransient(Permanent("bad request")))

	assert.True(t, IsTransient(Transient("network hiccup")))
	assert.False(t, IsPermanent(Transient("network hiccup")))

	// classification survives wrapping
	wrapped := fmt.Errorf("stage: %w", PermanentWrap(errors.New("decode failed"), "frame 3"))
	assert.True(t, IsPermanent(wrapped))

	// unclassified errors are neither
	plain := errors.New("something")
	assert.False(t, IsPermanent(plain))
	assert.False(t, IsTransient(plain))
}

func TestProcessingRequestValidate(t *testing.T) {
	valid := ProcessingRequest{
		SourceBucket:   "uploads",
		SourceKey:      "a/b.mp4",
		DestinationKey: "a/b_fx.mp4",
		EffectID:       "technicolor",
	}
	assert.NoError(t, valid.Validate())

	cases := []ProcessingRequest{
		{SourceKey: "a", DestinationKey: "b", EffectID: "c"},
		{SourceBucket: "a", DestinationKey: "b", EffectID: "c"},
		{SourceBucket: "a", SourceKey: "b", EffectID: "c"},
		{SourceBucket: "a", SourceKey: "b", DestinationKey: "c"},
	}
	for i, req := range cases {
		err := req.Validate()
		assert.Error(t, err, "case %d", i)
		assert.True(t, IsPermanent(err), "case %d", i)
	}
}
