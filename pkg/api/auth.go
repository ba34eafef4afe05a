package api

import "google.golang.org/protobuf/types/known/structpb"

const (
	// AuthServiceName is the fully-qualified name of the auth service.
	AuthServiceName = "ledgerly.auth.v1.AuthService"

	RegisterProcedure = "/" + AuthServiceName + "/Register"
	LoginProcedure    = "/" + AuthServiceName + "/Login"
)

// Credentials is the payload of Register and Login. DisplayName is only
// used by Register.
type Credentials struct {
	Email       string
	Password    string
	DisplayName string
}

// ToStruct encodes the credentials.
func (c Credentials) ToStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"email":       structpb.NewStringValue(c.Email),
		"password":    structpb.NewStringValue(c.Password),
		"displayName": structpb.NewStringValue(c.DisplayName),
	}}
}

// CredentialsFromStruct decodes credentials.
func CredentialsFromStruct(s *structpb.Struct) Credentials {
	return Credentials{
		Email:       GetString(s, "email"),
		Password:    GetString(s, "password"),
		DisplayName: GetString(s, "displayName"),
	}
}

// Session is returned by Register and Login.
type Session struct {
	UserID      string
	Email       string
	DisplayName string
	Token       string
}

// ToStruct encodes the session.
func (s Session) ToStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"userId":      structpb.NewStringValue(s.UserID),
		"email":       structpb.NewStringValue(s.Email),
		"displayName": structpb.NewStringValue(s.DisplayName),
		"token":       structpb.NewStringValue(s.Token),
	}}
}

// SessionFromStruct decodes a session.
func SessionFromStruct(s *structpb.Struct) Session {
	return Session{
		UserID:      GetString(s, "userId"),
		Email:       GetString(s, "email"),
		DisplayName: GetString(s, "displayName"),
		Token:       GetString(s, "token"),
	}
}
