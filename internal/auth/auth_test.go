package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-for-unit-tests-only")

func TestIssueAndParseRoundTrip(t *testing.T) {
	dept := uuid.New()
	actors := []Actor{
		Admin{ID: uuid.New()},
		SubAdmin{ID: uuid.New()},
		Staff{ID: uuid.New(), DepartmentID: dept},
		DoctorActor{ID: uuid.New(), DepartmentID: dept},
		PatientActor{ID: uuid.New()},
	}

	for _, a := range actors {
		t.Run(string(a.Role()), func(t *testing.T) {
			tok, err := IssueToken(a, testSecret, time.Hour)
			require.NoError(t, err)

			got, err := ParseToken(tok, testSecret)
			require.NoError(t, err)
			assert.Equal(t, a, got)
		})
	}
}

func TestIssueTokenRejectsAnonymous(t *testing.T) {
	_, err := IssueToken(Anonymous{}, testSecret, time.Hour)
	assert.Error(t, err)
}

func TestParseTokenFailures(t *testing.T) {
	valid, err := IssueToken(Admin{ID: uuid.New()}, testSecret, time.Hour)
	require.NoError(t, err)

	expired, err := IssueToken(Admin{ID: uuid.New()}, testSecret, -time.Minute)
	require.NoError(t, err)

	staffNoDept := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
		Role:             RoleStaff,
	})
	staffNoDeptStr, err := staffNoDept.SignedString(testSecret)
	require.NoError(t, err)

	unknownRole := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
		Role:             "janitor",
	})
	unknownRoleStr, err := unknownRole.SignedString(testSecret)
	require.NoError(t, err)

	_, err = ParseToken(valid, []byte("other-secret"))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken(expired, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken(staffNoDeptStr, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken(unknownRoleStr, testSecret)
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = ParseToken("not-a-token", testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddlewareAnonymousWithoutHeader(t *testing.T) {
	var seen Actor
	h := Middleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Anonymous{}, seen)
}

func TestMiddlewareInvalidHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"garbage token", "Bearer abc.def.ghi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Middleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	staff := Staff{ID: uuid.New(), DepartmentID: uuid.New()}
	tok, err := IssueToken(staff, testSecret, time.Hour)
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	serve := func(header string, roles ...Role) int {
		h := Middleware(testSecret)(RequireRole(roles...)(ok))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, serve("Bearer "+tok, RoleAdmin, RoleStaff))
	assert.Equal(t, http.StatusForbidden, serve("Bearer "+tok, RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, serve("", RoleAdmin))
}

func TestActorHelpers(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, id, ActorID(DoctorActor{ID: id}))
	assert.Equal(t, uuid.Nil, ActorID(Anonymous{}))
	assert.True(t, IsAdministrative(SubAdmin{}))
	assert.False(t, IsAdministrative(Staff{}))
}
