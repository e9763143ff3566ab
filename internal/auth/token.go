package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownRole  = errors.New("unknown role")
)

type Claims struct {
	jwt.RegisteredClaims
	Role         Role   `json:"role"`
	DepartmentID string `json:"department_id,omitempty"`
}

// ParseToken verifies an HS256 token and maps its claims to an Actor.
func ParseToken(tokenStr string, secret []byte) (Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return actorFromClaims(claims)
}

func actorFromClaims(c *Claims) (Actor, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}

	department := func() (uuid.UUID, error) {
		d, err := uuid.Parse(c.DepartmentID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: %s token without department_id", ErrInvalidToken, c.Role)
		}
		return d, nil
	}

	switch c.Role {
	case RoleAdmin:
		return Admin{ID: id}, nil
	case RoleSubAdmin:
		return SubAdmin{ID: id}, nil
	case RoleStaff:
		d, err := department()
		if err != nil {
			return nil, err
		}
		return Staff{ID: id, DepartmentID: d}, nil
	case RoleDoctor:
		d, err := department()
		if err != nil {
			return nil, err
		}
		return DoctorActor{ID: id, DepartmentID: d}, nil
	case RolePatient:
		return PatientActor{ID: id}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, c.Role)
	}
}

// IssueToken signs a token for a. Used by tests and the seed tooling;
// the service itself has no login flow.
func IssueToken(a Actor, secret []byte, ttl time.Duration) (string, error) {
	if _, ok := a.(Anonymous); ok {
		return "", errors.New("cannot issue a token for an anonymous actor")
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ActorID(a).String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: a.Role(),
	}
	switch v := a.(type) {
	case Staff:
		claims.DepartmentID = v.DepartmentID.String()
	case DoctorActor:
		claims.DepartmentID = v.DepartmentID.String()
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
