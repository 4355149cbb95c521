// Package dashboard holds the role-scoped operations behind the school
// dashboard. Every operation receives an explicit Session; transports look
// actions up in the handler table returned by Actions.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"edusphere/internal/export"
	"edusphere/internal/gateway"
	"edusphere/internal/jobs"
	"edusphere/internal/queue"
	"edusphere/internal/report"
	"edusphere/internal/school"
)

// ErrUnknownAction is returned by Dispatch for names missing from the table.
var ErrUnknownAction = errors.New("unknown action")

// Branding is printed on every document export.
type Branding struct {
	Institution  string
	LogoURL      string
	SignatureURL string
}

// Options configures a Service. Images, Jobs and Queue may be nil; exports
// then render without pictures and background jobs are refused.
type Options struct {
	Gateway  gateway.Gateway
	Images   *export.ImageFetcher
	Jobs     jobs.Store
	Queue    queue.Queue
	Branding Branding
	Location *time.Location
	Log      *zap.Logger
	Now      func() time.Time
}

// Service implements the dashboard operations over a Gateway.
type Service struct {
	gw       gateway.Gateway
	reports  *report.Builder
	images   *export.ImageFetcher
	jobs     jobs.Store
	queue    queue.Queue
	branding Branding
	loc      *time.Location
	log      *zap.Logger
	now      func() time.Time
}

func New(o Options) *Service {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Service{
		gw:       o.Gateway,
		reports:  report.NewBuilder(o.Gateway, o.Log.Named("report"), o.Location),
		images:   o.Images,
		jobs:     o.Jobs,
		queue:    o.Queue,
		branding: o.Branding,
		loc:      o.Location,
		log:      o.Log,
		now:      o.Now,
	}
}

// Session is the caller of an operation. Today is the calendar date in the
// configured time zone at the moment the session was built.
type Session struct {
	UserID  string
	Role    school.Role
	Profile school.Profile
	Today   school.Date
}

// Name is the display name used on exports.
func (s Session) Name() string { return s.Profile.DisplayName() }

// Can reports whether the session's role is one of roles.
func (s Session) Can(roles ...school.Role) bool {
	for _, r := range roles {
		if s.Role == r {
			return true
		}
	}
	return false
}

// NewSession loads the caller's profile. The profile's role wins over the
// token role; a user without a profile keeps the token role if it is a
// dashboard role.
func (svc *Service) NewSession(ctx context.Context, userID string, tokenRole school.Role) (Session, error) {
	sess := Session{UserID: userID, Role: tokenRole, Today: school.DateOf(svc.now().In(svc.loc))}
	rows, err := svc.gw.Select(ctx, gateway.Profiles, gateway.Query{
		Filters: []gateway.Filter{gateway.Eq("user_id", userID)},
		Limit:   1,
	})
	if err != nil {
		return Session{}, err
	}
	if len(rows) == 1 {
		if err := gateway.DecodeOne(rows[0], &sess.Profile); err != nil {
			return Session{}, fmt.Errorf("profile %s: %w", userID, err)
		}
		if sess.Profile.Role != "" {
			sess.Role = sess.Profile.Role
		}
	}
	switch sess.Role {
	case school.RoleAdmin, school.RoleTeacher, school.RoleStudent, school.RoleParent:
		return sess, nil
	}
	return Session{}, school.ErrForbidden
}

// Handler runs one action with its raw JSON input.
type Handler func(ctx context.Context, sess Session, input json.RawMessage) (interface{}, error)

// Action is a handler table entry.
type Action struct {
	Roles  []school.Role
	Handle Handler
}

var (
	teachers    = []school.Role{school.RoleTeacher, school.RoleAdmin}
	admins      = []school.Role{school.RoleAdmin}
	everyone    = []school.Role{school.RoleAdmin, school.RoleTeacher, school.RoleStudent, school.RoleParent}
	onlyStudent = []school.Role{school.RoleStudent}
	onlyParent  = []school.Role{school.RoleParent}
)

// Actions is the handler table keyed by action name.
func (svc *Service) Actions() map[string]Action {
	return map[string]Action{
		"classes.list":              {teachers, noInput(svc.Classes)},
		"classes.roster":            {teachers, bind(svc.Roster)},
		"records.save":              {teachers, bind(svc.SaveRecords)},
		"report.build":              {teachers, bind(svc.Report)},
		"assignments.create":        {teachers, bind(svc.CreateAssignment)},
		"assignments.update_status": {teachers, bind(svc.UpdateAssignmentStatus)},
		"assignments.delete":        {teachers, bind(svc.DeleteAssignment)},
		"assignments.deadlines":     {teachers, bind(svc.Deadlines)},
		"announcements.create":      {teachers, bind(svc.CreateAnnouncement)},
		"announcements.list":        {everyone, noInput(svc.Announcements)},
		"exports.submit":            {teachers, bind(svc.SubmitExport)},
		"admin.stats":               {admins, noInput(svc.AdminStats)},
		"admin.link_parent":         {admins, bind(svc.LinkParent)},
		"student.overview":          {onlyStudent, noInput(svc.StudentOverview)},
		"parent.overview":           {onlyParent, noInput(svc.ParentOverview)},
	}
}

// Dispatch runs the named action after checking the session's role.
func (svc *Service) Dispatch(ctx context.Context, sess Session, name string, input json.RawMessage) (interface{}, error) {
	a, ok := svc.Actions()[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownAction, name)
	}
	if !sess.Can(a.Roles...) {
		return nil, school.ErrForbidden
	}
	return a.Handle(ctx, sess, input)
}

func bind[T, R any](fn func(context.Context, Session, T) (R, error)) Handler {
	return func(ctx context.Context, sess Session, input json.RawMessage) (interface{}, error) {
		var in T
		if len(input) > 0 && string(input) != "null" {
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, school.NewValidationError(school.FieldError{Field: "body", Error: "must be a valid JSON object"})
			}
		}
		return fn(ctx, sess, in)
	}
}

func noInput[R any](fn func(context.Context, Session) (R, error)) Handler {
	return func(ctx context.Context, sess Session, _ json.RawMessage) (interface{}, error) {
		return fn(ctx, sess)
	}
}

// one returns school.ErrNotFound when q matches nothing.
func (svc *Service) one(ctx context.Context, collection string, filters []gateway.Filter, out interface{}) error {
	rows, err := svc.gw.Select(ctx, collection, gateway.Query{Filters: filters, Limit: 1})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return school.ErrNotFound
	}
	return gateway.DecodeOne(rows[0], out)
}

func (svc *Service) list(ctx context.Context, collection string, q gateway.Query, out interface{}) error {
	rows, err := svc.gw.Select(ctx, collection, q)
	if err != nil {
		return err
	}
	return gateway.Decode(rows, out)
}
