package models

// ConnectedClinic is an entry of a doctor's clinic list.
type ConnectedClinic struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Href string `json:"href"`
}

// ConnectedDoctor is an entry of a clinic's doctor list.
type ConnectedDoctor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Title  string `json:"title,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Href   string `json:"href"`
}

// Graph holds both directions of the accepted doctor/clinic relationships.
type Graph struct {
	DoctorToClinics map[string][]ConnectedClinic `json:"doctorToClinics"`
	ClinicToDoctors map[string][]ConnectedDoctor `json:"clinicToDoctors"`
}

// NewGraph returns an empty graph with both maps allocated.
func NewGraph() Graph {
	return Graph{
		DoctorToClinics: map[string][]ConnectedClinic{},
		ClinicToDoctors: map[string][]ConnectedDoctor{},
	}
}
