package models

// AssignPolicy decides what an empty reference list means on create/update.
// With AssignAll an empty list expands to every entity of the target kind;
// with AssignNone (the default) it stays empty.
type AssignPolicy string

const (
	AssignNone AssignPolicy = "NONE"
	AssignAll  AssignPolicy = "ALL"
)

// ExpandsEmpty reports whether empty reference lists are auto-filled.
func (p AssignPolicy) ExpandsEmpty() bool {
	return p == AssignAll
}

// ConflictScope narrows which existing batches are compared against a booking.
type ConflictScope string

const (
	// ConflictScopePerson compares every batch of the person.
	ConflictScopePerson ConflictScope = "PERSON"
	// ConflictScopePersonCourse only compares batches of the same course.
	ConflictScopePersonCourse ConflictScope = "PERSON_COURSE"
	// ConflictScopePersonCourseBranch additionally matches the branch when one is given.
	ConflictScopePersonCourseBranch ConflictScope = "PERSON_COURSE_BRANCH"
)

// Valid reports whether the scope is one of the declared values.
func (s ConflictScope) Valid() bool {
	switch s {
	case ConflictScopePerson, ConflictScopePersonCourse, ConflictScopePersonCourseBranch:
		return true
	}
	return false
}
