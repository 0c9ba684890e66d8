package domain

import (
	"encoding/json"
	"fmt"
)

// Role is a closed set: the zero value is not a valid role.
type Role struct {
	name string
}

var (
	RoleStudent = Role{name: "student"}
	RoleTeacher = Role{name: "teacher"}
)

// ParseRole maps the persisted role string onto the variant.
func ParseRole(s string) (Role, error) {
	switch s {
	case RoleStudent.name:
		return RoleStudent, nil
	case RoleTeacher.name:
		return RoleTeacher, nil
	}
	return Role{}, Errorf(KindValidation, "unknown role %q", s)
}

func (r Role) String() string { return r.name }

// IsZero reports whether the role was never set.
func (r Role) IsZero() bool { return r.name == "" }

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.name)
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("role: %w", err)
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Capability names an action guarded by role.
type Capability string

const (
	CapAuthorExams   Capability = "exam:author"
	CapTakeExams     Capability = "exam:take"
	CapViewReports   Capability = "report:view"
	CapViewOwnResult Capability = "result:view-own"
	CapViewExams     Capability = "exam:view"
)

var capabilities = map[Role][]Capability{
	RoleStudent: {CapTakeExams, CapViewOwnResult, CapViewExams},
	RoleTeacher: {CapAuthorExams, CapViewReports, CapViewExams},
}

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	for _, granted := range capabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID string
	Role   Role

	// NationalID lets lookups fall back to records re-keyed by national ID.
	NationalID string
}

// Require returns ErrForbidden unless the principal's role grants c.
func (p Principal) Require(c Capability) error {
	if p.UserID == "" || p.Role.IsZero() {
		return ErrUnauthenticated
	}
	if !p.Role.Can(c) {
		return &Error{Kind: KindForbidden, Msg: fmt.Sprintf("%s requires %s", p.Role, c), Err: ErrForbidden}
	}
	return nil
}
