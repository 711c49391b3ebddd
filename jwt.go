package mapsync

import (
	gojwt "github.com/golang-jwt/jwt/v5"
)

// identity claims carried by the platform bearer token.
// the client does not verify the signature; the server does that when the
// token is presented on the rest and socket connections.
type ByJwt struct {
	UserId   int
	Username string
}

func ParseByJwtUnverified(byJwtStr string) (*ByJwt, error) {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(byJwtStr, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := token.Claims.(gojwt.MapClaims)

	byJwt := &ByJwt{}

	if userId, ok := claims["user_id"]; ok {
		switch v := userId.(type) {
		case float64:
			byJwt.UserId = int(v)
		case int:
			byJwt.UserId = v
		}
	}
	if username, ok := claims["username"]; ok {
		if v, ok := username.(string); ok {
			byJwt.Username = v
		}
	}

	return byJwt, nil
}
