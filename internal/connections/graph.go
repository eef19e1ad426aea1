package connections

import (
	"github.com/Cross4solution/MedGama-sub003/internal/models"
)

type party struct {
	ID     string
	Name   string
	Title  string
	Avatar string
}

// splitParties returns the doctor and clinic side of an invite. The sender's
// kind decides; the other side is the recipient.
func splitParties(invite models.Invite) (doctor, clinic party) {
	from := party{ID: invite.FromID, Name: invite.FromName, Title: invite.FromTitle, Avatar: invite.FromAvatar}
	to := party{ID: invite.ToID, Name: invite.ToName, Title: invite.ToTitle, Avatar: invite.ToAvatar}
	if invite.FromType == models.ActorDoctor {
		return from, to
	}
	return to, from
}

func clinicEntry(p party, meta *models.ClinicMeta) models.ConnectedClinic {
	entry := models.ConnectedClinic{ID: p.ID, Name: p.Name, Href: "/clinic/" + p.ID}
	if meta != nil {
		entry.Name = firstNonEmpty(meta.Name, entry.Name)
		entry.Href = firstNonEmpty(meta.Href, entry.Href)
	}
	return entry
}

func doctorEntry(p party, meta *models.DoctorMeta) models.ConnectedDoctor {
	entry := models.ConnectedDoctor{ID: p.ID, Name: p.Name, Title: p.Title, Avatar: p.Avatar, Href: "/doctor/" + p.ID}
	if meta != nil {
		entry.Name = firstNonEmpty(meta.Name, entry.Name)
		entry.Title = firstNonEmpty(meta.Title, entry.Title)
		entry.Avatar = firstNonEmpty(meta.Avatar, entry.Avatar)
		entry.Href = firstNonEmpty(meta.Href, entry.Href)
	}
	return entry
}

// upsertClinic overwrites the non-empty fields of a matching entry or appends a new one.
func upsertClinic(graph models.Graph, doctorID string, entry models.ConnectedClinic) {
	list := graph.DoctorToClinics[doctorID]
	for i := range list {
		if list[i].ID == entry.ID {
			list[i].Name = firstNonEmpty(entry.Name, list[i].Name)
			list[i].Href = firstNonEmpty(entry.Href, list[i].Href)
			return
		}
	}
	graph.DoctorToClinics[doctorID] = append(list, entry)
}

func upsertDoctor(graph models.Graph, clinicID string, entry models.ConnectedDoctor) {
	list := graph.ClinicToDoctors[clinicID]
	for i := range list {
		if list[i].ID == entry.ID {
			list[i].Name = firstNonEmpty(entry.Name, list[i].Name)
			list[i].Title = firstNonEmpty(entry.Title, list[i].Title)
			list[i].Avatar = firstNonEmpty(entry.Avatar, list[i].Avatar)
			list[i].Href = firstNonEmpty(entry.Href, list[i].Href)
			return
		}
	}
	graph.ClinicToDoctors[clinicID] = append(list, entry)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
