package entities

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// User represents a student account
type User struct {
	ID                string            `json:"id" bson:"_id" db:"id"`
	Email             string            `json:"email" bson:"email" db:"email"`
	StudentPreference StudentPreference `json:"studentPreference" bson:"student_preference" db:"studentPreference"`
	CreatedAt         time.Time         `json:"createdAt" bson:"created_at" db:"createdAt"`
}

// Validate validates the user data
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("user id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

// DefaultStudentAge is assumed when the preference carries no age
const DefaultStudentAge = 12

// StudentPreference holds what the tutor knows about the student
type StudentPreference struct {
	Name          string `json:"name" bson:"name"`
	Age           string `json:"age" bson:"age"`
	Language      string `json:"language" bson:"language"`
	Country       string `json:"country" bson:"country"`
	Grade         string `json:"grade" bson:"grade"`
	SchoolProgram string `json:"school-program" bson:"school_program"`
	// ChatsPreferences maps a chat type to the parent's note for it
	ChatsPreferences map[string]string `json:"chats-preferences" bson:"chats_preferences"`
}

// AgeYears returns the parsed age, DefaultStudentAge when unset, and ok=false
// when the stored value is not a number.
func (p StudentPreference) AgeYears() (float64, bool) {
	raw := strings.TrimSpace(p.Age)
	if raw == "" {
		return DefaultStudentAge, true
	}
	age, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return age, true
}

// ParentNote returns the parent's note for the chat type, if any
func (p StudentPreference) ParentNote(chatType ChatType) string {
	if p.ChatsPreferences == nil {
		return ""
	}
	return p.ChatsPreferences[string(chatType)]
}

// Clone returns a copy that shares no map with p
func (p StudentPreference) Clone() StudentPreference {
	out := p
	if p.ChatsPreferences != nil {
		out.ChatsPreferences = make(map[string]string, len(p.ChatsPreferences))
		for k, v := range p.ChatsPreferences {
			out.ChatsPreferences[k] = v
		}
	}
	return out
}

// Validate checks the fields the tutor derives settings from
func (p StudentPreference) Validate() error {
	if _, ok := p.AgeYears(); !ok {
		return fmt.Errorf("age %q is not a number", p.Age)
	}
	for chatType := range p.ChatsPreferences {
		if !ChatType(chatType).Valid() {
			return fmt.Errorf("unknown chat type %q in chats-preferences", chatType)
		}
	}
	return nil
}
