package models

// RelationSpec names the array column on the target table that mirrors a
// source entity's reference list.
type RelationSpec struct {
	Name   string
	Target string
	Field  string
}

// Declared relations. Only these may be synchronised.
var (
	CourseBranches = RelationSpec{Name: "course_branches", Target: "branches", Field: "course_ids"}
	BranchCourses  = RelationSpec{Name: "branch_courses", Target: "courses", Field: "branch_ids"}
	CoursePersons  = RelationSpec{Name: "course_persons", Target: "persons", Field: "course_ids"}
	PersonCourses  = RelationSpec{Name: "person_courses", Target: "courses", Field: "person_ids"}
	// BranchPersons has no mirror on branches; it is only ever detached.
	BranchPersons = RelationSpec{Name: "branch_persons", Target: "persons", Field: "branch_ids"}
)

// Declared reports whether spec is one of the declared relations.
func (s RelationSpec) Declared() bool {
	switch s {
	case CourseBranches, BranchCourses, CoursePersons, PersonCourses, BranchPersons:
		return true
	}
	return false
}
