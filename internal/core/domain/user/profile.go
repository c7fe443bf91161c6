package user

import "time"

// Profile is the player profile served by the backend at /users/{id}.
type Profile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Level       int       `json:"level"`
	Currency    int64     `json:"currency"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Fixtures are the profiles served when the client runs against mock data.
func Fixtures() map[string]Profile {
	return map[string]Profile{
		"user_001": {ID: "user_001", DisplayName: "Ada", Level: 12, Currency: 1500},
		"user_002": {ID: "user_002", DisplayName: "Grace", Level: 7, Currency: 320},
		"user_003": {ID: "user_003", DisplayName: "Linus", Level: 1},
	}
}
