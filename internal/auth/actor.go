// Package auth turns bearer tokens into the Actor performing a request.
package auth

import (
	"context"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSubAdmin Role = "subadmin"
	RoleStaff    Role = "staff"
	RoleDoctor   Role = "doctor"
	RolePatient  Role = "patient"
)

// Actor is one of Admin, SubAdmin, Staff, DoctorActor, PatientActor or
// Anonymous. The set is closed; callers switch on the concrete type.
type Actor interface {
	Role() Role
	actor()
}

type Admin struct {
	ID uuid.UUID
}

type SubAdmin struct {
	ID uuid.UUID
}

// Staff works inside a single department.
type Staff struct {
	ID           uuid.UUID
	DepartmentID uuid.UUID
}

type DoctorActor struct {
	ID           uuid.UUID
	DepartmentID uuid.UUID
}

type PatientActor struct {
	ID uuid.UUID
}

// Anonymous is an unauthenticated caller using the public booking path.
type Anonymous struct{}

func (Admin) Role() Role        { return RoleAdmin }
func (SubAdmin) Role() Role     { return RoleSubAdmin }
func (Staff) Role() Role        { return RoleStaff }
func (DoctorActor) Role() Role  { return RoleDoctor }
func (PatientActor) Role() Role { return RolePatient }
func (Anonymous) Role() Role    { return "" }

func (Admin) actor()        {}
func (SubAdmin) actor()     {}
func (Staff) actor()        {}
func (DoctorActor) actor()  {}
func (PatientActor) actor() {}
func (Anonymous) actor()    {}

// ActorID returns the identity behind a, or uuid.Nil for Anonymous.
func ActorID(a Actor) uuid.UUID {
	switch v := a.(type) {
	case Admin:
		return v.ID
	case SubAdmin:
		return v.ID
	case Staff:
		return v.ID
	case DoctorActor:
		return v.ID
	case PatientActor:
		return v.ID
	default:
		return uuid.Nil
	}
}

// IsAdministrative reports Admin and SubAdmin.
func IsAdministrative(a Actor) bool {
	switch a.(type) {
	case Admin, SubAdmin:
		return true
	default:
		return false
	}
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns the request actor, Anonymous when none was set.
func FromContext(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok && a != nil {
		return a
	}
	return Anonymous{}
}
