package models

type User struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	DateOfBirth       string `json:"dateOfBirth,omitempty"`
	Gender            string `json:"gender,omitempty"`
	Avatar            string `json:"avatar,omitempty"`
	Bio               string `json:"bio,omitempty"`
	IsEmailVerified   bool   `json:"isEmailVerified"`
	IsProfileComplete bool   `json:"isProfileComplete"`
	CreatedAt         string `json:"createdAt,omitempty"`
	UpdatedAt         string `json:"updatedAt,omitempty"`
}

type Avatar struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

type UploadAvatarResponse struct {
	Avatar Avatar `json:"avatar"`
}
