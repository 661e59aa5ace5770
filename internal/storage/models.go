package storage

import (
	"time"

	"statboard-backend/internal/audit"
)

type DataSourceRecord struct {
	ID          string
	Name        string
	Type        string
	Host        string
	Port        int
	User        string
	PasswordEnc string
	Database    string
	SSLMode     string
	CreatedAt   time.Time
}

// QueryRecord is a versioned entity: every user-facing mutation flows through
// the tracked update path and lands one change row. QueryHash is always the
// fingerprint of the current QueryText; the repository recomputes it at every
// write so the two can never drift apart.
type QueryRecord struct {
	ID                string
	Version           int
	DataSourceID      string
	LatestQueryDataID *string
	Name              string
	Description       string
	QueryText         string
	QueryHash         string
	Schedule          *string
	IsArchived        bool
	IsDraft           bool
	UserID            string
	LastModifiedByID  *string
	LastError         *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (q *QueryRecord) AuditObjectType() audit.ObjectType { return audit.ObjectTypeQuery }
func (q *QueryRecord) AuditObjectID() string             { return q.ID }
func (q *QueryRecord) AuditVersion() int                 { return q.Version }

func (q *QueryRecord) TrackedFields() map[string]any {
	return map[string]any{
		"name":                 q.Name,
		"description":          q.Description,
		"query":                q.QueryText,
		"query_hash":           q.QueryHash,
		"data_source_id":       q.DataSourceID,
		"schedule":             strPtrValue(q.Schedule),
		"is_archived":          q.IsArchived,
		"is_draft":             q.IsDraft,
		"latest_query_data_id": strPtrValue(q.LatestQueryDataID),
		"user_id":              q.UserID,
		"last_modified_by_id":  strPtrValue(q.LastModifiedByID),
	}
}

// ResultRecord is immutable once stored: one row per successful execution.
type ResultRecord struct {
	ID           string
	DataSourceID string
	QueryHash    string
	QueryText    string
	Data         []byte
	Runtime      float64
	RetrievedAt  time.Time
}

type DashboardRecord struct {
	ID         string
	Version    int
	Name       string
	Layout     []byte
	UserID     string
	IsArchived bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (d *DashboardRecord) AuditObjectType() audit.ObjectType { return audit.ObjectTypeDashboard }
func (d *DashboardRecord) AuditObjectID() string             { return d.ID }
func (d *DashboardRecord) AuditVersion() int                 { return d.Version }

func (d *DashboardRecord) TrackedFields() map[string]any {
	return map[string]any{
		"name":        d.Name,
		"layout":      string(d.Layout),
		"user_id":     d.UserID,
		"is_archived": d.IsArchived,
	}
}

type AlertRecord struct {
	ID              string
	QueryID         string
	UserID          string
	Name            string
	Column          string
	Op              string
	Value           string
	Rearm           int
	State           string
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type VisualizationRecord struct {
	ID          string
	QueryID     string
	Name        string
	Description string
	Type        string
	Options     string
	CreatedAt   time.Time
}

// ScheduledQuery is the projection the scheduler polls: schedule-bearing,
// unarchived queries joined to the retrieval time of their latest result.
// RetrievedAt is nil for queries that have never produced a result.
type ScheduledQuery struct {
	ID           string
	DataSourceID string
	QueryText    string
	QueryHash    string
	Schedule     string
	RetrievedAt  *time.Time
}

func strPtrValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
