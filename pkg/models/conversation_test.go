package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalPair(t *testing.T) {
	low, high := CanonicalPair("user-b", "user-a")
	assert.Equal(t, "user-a", low)
	assert.Equal(t, "user-b", high)

	// Commutative
	low2, high2 := CanonicalPair("user-a", "user-b")
	assert.Equal(t, low, low2)
	assert.Equal(t, high, high2)
}

func TestResolveDirectSlots(t *testing.T) {
	employer := &User{ID: "emp-1", Name: "Acme", Role: RoleEmployer}
	seeker := &User{ID: "seek-1", Name: "Jo", Role: RoleJobSeeker}

	t.Run("mixed roles map by role regardless of order", func(t *testing.T) {
		e1, s1 := ResolveDirectSlots(employer, seeker)
		e2, s2 := ResolveDirectSlots(seeker, employer)
		assert.Equal(t, "emp-1", e1)
		assert.Equal(t, "seek-1", s1)
		assert.Equal(t, e1, e2)
		assert.Equal(t, s1, s2)
	})

	t.Run("same-role pairs resolve deterministically", func(t *testing.T) {
		a := &User{ID: "seek-a", Role: RoleJobSeeker}
		b := &User{ID: "seek-b", Role: RoleJobSeeker}
		e1, s1 := ResolveDirectSlots(a, b)
		e2, s2 := ResolveDirectSlots(b, a)
		assert.Equal(t, e1, e2)
		assert.Equal(t, s1, s2)
	})
}

func TestConversationParticipants(t *testing.T) {
	conv := &Conversation{EmployerID: "emp-1", JobSeekerID: "seek-1", UnreadEmployer: 3, UnreadJobSeeker: 1}

	assert.True(t, conv.HasParticipant("emp-1"))
	assert.True(t, conv.HasParticipant("seek-1"))
	assert.False(t, conv.HasParticipant("other"))

	role, ok := conv.RoleOf("emp-1")
	assert.True(t, ok)
	assert.Equal(t, RoleEmployer, role)

	_, ok = conv.RoleOf("other")
	assert.False(t, ok)

	assert.Equal(t, "seek-1", conv.Counterpart("emp-1"))
	assert.Equal(t, "emp-1", conv.Counterpart("seek-1"))

	assert.Equal(t, 3, conv.UnreadFor(RoleEmployer))
	assert.Equal(t, 1, conv.UnreadFor(RoleJobSeeker))
}

func TestJobOpen(t *testing.T) {
	assert.True(t, (&Job{Status: JobStatusOpen, IsActive: true}).Open())
	assert.False(t, (&Job{Status: JobStatusClosed, IsActive: true}).Open())
	assert.False(t, (&Job{Status: JobStatusOpen, IsActive: false}).Open())

	var missing *Job
	assert.False(t, missing.Open())
}
