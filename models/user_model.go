package models

import "time"

type User struct {
	ID           string    `json:"-" bson:"_id,omitempty"`
	PublicID     string    `json:"id" bson:"public_id"`
	FirstName    string    `json:"firstname" bson:"first_name"`
	LastName     string    `json:"lastname" bson:"last_name"`
	Email        string    `json:"-" bson:"email"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	Sex          string    `json:"sex" bson:"sex"`
	AvatarPath   string    `json:"avatar_path" bson:"avatar_path"`
	CreatedAt    time.Time `json:"-" bson:"created_at"`
}

// UserFilters holds the optional equality filters of a nearby query.
// Zero-value fields are not applied.
type UserFilters struct {
	Sex       string
	FirstName string
	LastName  string
}
