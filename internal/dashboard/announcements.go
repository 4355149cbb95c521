package dashboard

import (
	"context"
	"strings"

	"edusphere/internal/gateway"
	"edusphere/internal/school"
)

// AnnouncementLimit caps the announcement feed.
const AnnouncementLimit = 10

// AnnouncementInput creates an announcement. Announcements cannot be edited.
type AnnouncementInput struct {
	Title   string `json:"title" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=5000"`
}

func (svc *Service) CreateAnnouncement(ctx context.Context, sess Session, in AnnouncementInput) (school.Announcement, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	if err := school.Validate(in); err != nil {
		return school.Announcement{}, err
	}
	row, err := svc.gw.Insert(ctx, gateway.Announcements, gateway.Row{
		"teacher_id": sess.UserID,
		"title":      in.Title,
		"message":    in.Message,
	})
	if err != nil {
		return school.Announcement{}, err
	}
	var a school.Announcement
	if err := gateway.DecodeOne(row, &a); err != nil {
		return school.Announcement{}, err
	}
	return a, nil
}

// Announcements returns the newest announcements. Teachers see their own.
func (svc *Service) Announcements(ctx context.Context, sess Session) ([]school.Announcement, error) {
	q := gateway.Query{
		Order: &gateway.Order{Column: "created_at", Desc: true},
		Limit: AnnouncementLimit,
	}
	if sess.Role == school.RoleTeacher {
		q.Filters = []gateway.Filter{gateway.Eq("teacher_id", sess.UserID)}
	}
	var out []school.Announcement
	if err := svc.list(ctx, gateway.Announcements, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}
