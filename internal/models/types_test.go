package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSession_IsEndedAndIsSummarized(t *testing.T) {
	s := Session{}
	require.False(t, s.IsEnded())
	require.False(t, s.IsSummarized())

	now := time.Now()
	s.EndedAt = &now
	s.Summary = []byte(`{"narrative":"done"}`)
	require.True(t, s.IsEnded())
	require.True(t, s.IsSummarized())
}

func TestObservation_Failed(t *testing.T) {
	o := Observation{}
	require.False(t, o.Failed())

	o.Metadata = []byte(`{"failed":true}`)
	require.True(t, o.Failed())

	o.Metadata = []byte(`{"failed":false}`)
	require.False(t, o.Failed())

	o.Metadata = []byte(`not json`)
	require.False(t, o.Failed())
}
