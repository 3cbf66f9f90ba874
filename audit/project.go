package audit

import "fmt"

// NewProject creates an empty project with the given metadata.
func NewProject(name string, general GeneralInfo) *Project {
	return &Project{
		Name:    name,
		General: general,
		plans:   make(map[string]*Plan),
	}
}

// AddPlan registers a plan under its name. Plan names are unique
// within a project; insertion order is preserved for reporting.
func (pr *Project) AddPlan(plan *Plan) error {
	if plan.Name == "" {
		return fmt.Errorf("plan name is required")
	}
	if pr.plans == nil {
		pr.plans = make(map[string]*Plan)
	}
	if _, ok := pr.plans[plan.Name]; ok {
		return fmt.Errorf("plan %q: %w", plan.Name, ErrDuplicatePlan)
	}
	pr.plans[plan.Name] = plan
	pr.planNames = append(pr.planNames, plan.Name)
	return nil
}

// Plan returns the named plan.
func (pr *Project) Plan(name string) (*Plan, bool) {
	p, ok := pr.plans[name]
	return p, ok
}

// Plans returns the project's plans in insertion order.
func (pr *Project) Plans() []*Plan {
	out := make([]*Plan, 0, len(pr.planNames))
	for _, name := range pr.planNames {
		out = append(out, pr.plans[name])
	}
	return out
}

// PlanNames returns the plan names in insertion order.
func (pr *Project) PlanNames() []string {
	out := make([]string, len(pr.planNames))
	copy(out, pr.planNames)
	return out
}

// RemovePlan deletes the named plan.
func (pr *Project) RemovePlan(name string) error {
	if _, ok := pr.plans[name]; !ok {
		return fmt.Errorf("plan %q: %w", name, ErrUnknownPlan)
	}
	delete(pr.plans, name)
	for i, n := range pr.planNames {
		if n == name {
			pr.planNames = append(pr.planNames[:i], pr.planNames[i+1:]...)
			break
		}
	}
	return nil
}

// RecordCount sums the measurement records across all plans.
func (pr *Project) RecordCount() int {
	total := 0
	for _, plan := range pr.Plans() {
		total += len(plan.Records)
	}
	return total
}
