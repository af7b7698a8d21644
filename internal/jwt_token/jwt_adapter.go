package jwttoken

import (
	"compliance/pkg/platform/middleware/auth"
)

// JWTServiceAdapter exposes the JWTService as the auth middleware's validator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*auth.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &auth.Claims{ActorID: claims.ActorID, TenantID: claims.TenantID}, nil
}
