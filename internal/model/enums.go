package model

type FlowKind string

const (
	FlowAdd    FlowKind = "add"
	FlowSearch FlowKind = "search"
)

type Step string

const (
	StepName     Step = "name"
	StepAddress  Step = "address"
	StepCity     Step = "city"
	StepState    Step = "state"
	StepPhone    Step = "phone"
	StepContact  Step = "contact"
	StepStaff    Step = "staff"
	StepServices Step = "services"
	StepNotes    Step = "notes"
	StepConfirm  Step = "confirm"
	StepEdit     Step = "edit"
)

type StaffType string

const (
	StaffAmericans       StaffType = "Americans"
	StaffRussianSpeaking StaffType = "Russian-speaking"
	StaffMixed           StaffType = "Mixed"
)

// StaffTypes lists the valid staff types in display order.
func StaffTypes() []StaffType {
	return []StaffType{StaffAmericans, StaffRussianSpeaking, StaffMixed}
}

func ParseStaffType(s string) (StaffType, bool) {
	for _, st := range StaffTypes() {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// ServiceTags is the fixed set of service tags a shop can offer, in display order.
var ServiceTags = []string{
	"Tires",
	"Brakes",
	"Oil change",
	"Engine repair",
	"Transmission",
	"Electrical",
	"Welding",
	"Alignment",
	"Towing",
	"Trailer repair",
}

func IsServiceTag(tag string) bool {
	for _, t := range ServiceTags {
		if t == tag {
			return true
		}
	}
	return false
}
