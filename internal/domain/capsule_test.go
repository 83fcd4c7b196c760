package domain

import (
	"reflect"
	"testing"
)

func TestHasCollaborator(t *testing.T) {
	c := &Capsule{Collaborators: []Collaborator{{Email: "Ana@Example.com"}, {Email: "bo@x.com"}}}

	tests := []struct {
		email string
		want  bool
	}{
		{"ana@example.com", true},
		{"  bo@x.com ", true},
		{"carl@x.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := c.HasCollaborator(tt.email); got != tt.want {
			t.Errorf("HasCollaborator(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestCollaboratorEmailsKeepsOrderAndDuplicates(t *testing.T) {
	c := &Capsule{Collaborators: []Collaborator{{Email: "b@x"}, {Email: "a@x"}, {Email: "b@x"}}}
	want := []string{"b@x", "a@x", "b@x"}
	if got := c.CollaboratorEmails(); !reflect.DeepEqual(got, want) {
		t.Errorf("CollaboratorEmails() = %v, want %v", got, want)
	}
}
