package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sport type codes used by the COROS API.
var sportNames = map[int]string{
	100: "running",
	101: "trail running",
	104: "hiking",
	200: "cycling",
	201: "mountain biking",
	300: "swimming",
	301: "pool swim",
	402: "strength",
	500: "triathlon",
	904: "yoga",
}

// Activity is one recorded workout as reported by the activity listing.
// Values are never mutated after parsing.
type Activity struct {
	LabelID     string  `json:"labelId"`
	Name        string  `json:"name"`
	SportType   int     `json:"sportType"`
	StartTime   int64   `json:"startTime"`
	EndTime     int64   `json:"endTime"`
	WorkoutTime int64   `json:"workoutTime"`
	TotalTime   int64   `json:"totalTime"`
	Distance    float64 `json:"distance"`
}

// SportName returns a human readable name for the sport type code.
func (a Activity) SportName() string {
	if name, ok := sportNames[a.SportType]; ok {
		return name
	}
	return "other"
}

// StartDate formats the start timestamp as YYYY-MM-DD (UTC). Used for
// deterministic output file names.
func (a Activity) StartDate() string {
	return time.Unix(a.StartTime, 0).UTC().Format("2006-01-02")
}

// FilePrefix is the base name shared by all files written for this
// activity: date first so directory listings sort chronologically.
func (a Activity) FilePrefix() string {
	return fmt.Sprintf("%s_%s", a.StartDate(), a.LabelID)
}

// ExportFormat identifies one file encoding of an activity's recorded data.
type ExportFormat string

const (
	FormatFIT ExportFormat = "fit"
	FormatTCX ExportFormat = "tcx"
	FormatGPX ExportFormat = "gpx"
	FormatKML ExportFormat = "kml"
	FormatCSV ExportFormat = "csv"
)

// File type codes the download endpoint expects per format.
var fileTypes = map[ExportFormat]int{
	FormatCSV: 0,
	FormatGPX: 1,
	FormatKML: 2,
	FormatTCX: 3,
	FormatFIT: 4,
}

// FileType returns the numeric file type code for the download endpoint.
func (f ExportFormat) FileType() int {
	return fileTypes[f]
}

// Ext returns the file extension for this format, without the dot.
func (f ExportFormat) Ext() string {
	return string(f)
}

// ParseFormat converts a user supplied format name into an ExportFormat.
func ParseFormat(s string) (ExportFormat, error) {
	f := ExportFormat(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := fileTypes[f]; !ok {
		return "", fmt.Errorf("unknown export format %q (want fit, tcx, gpx, kml or csv)", s)
	}
	return f, nil
}

// ParseFormats parses a list of format names, dropping duplicates.
func ParseFormats(names []string) ([]ExportFormat, error) {
	seen := make(map[ExportFormat]bool, len(names))
	formats := make([]ExportFormat, 0, len(names))
	for _, name := range names {
		f, err := ParseFormat(name)
		if err != nil {
			return nil, err
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		formats = append(formats, f)
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("no export formats requested")
	}
	return formats, nil
}

// BackupState is the persisted record of which activities have been fully
// backed up. The id list is sorted before writing so the state file diffs
// cleanly between runs.
type BackupState struct {
	LastBackupTimestamp string   `json:"last_backup_timestamp"`
	TotalBackedUp       int      `json:"total_activities_backed_up"`
	LastSyncedID        string   `json:"last_synced_activity_id,omitempty"`
	DownloadedIDs       []string `json:"downloaded_activity_ids"`
}

// Normalize sorts the id list for stable serialization.
func (s *BackupState) Normalize() {
	sort.Strings(s.DownloadedIDs)
}

// Metadata is the per-activity metadata artifact written next to the
// export files.
type Metadata struct {
	ActivityID     string  `json:"activity_id"`
	ActivityName   string  `json:"activity_name"`
	Sport          string  `json:"sport"`
	SportType      int     `json:"sport_type"`
	StartTime      string  `json:"start_time"`
	EndTime        string  `json:"end_time"`
	WorkoutSeconds int64   `json:"workout_seconds"`
	TotalSeconds   int64   `json:"total_seconds"`
	DistanceMeters float64 `json:"distance_meters"`
}

// NewMetadata builds the metadata artifact for an activity.
func NewMetadata(a Activity) Metadata {
	return Metadata{
		ActivityID:     a.LabelID,
		ActivityName:   a.Name,
		Sport:          a.SportName(),
		SportType:      a.SportType,
		StartTime:      time.Unix(a.StartTime, 0).UTC().Format(time.RFC3339),
		EndTime:        time.Unix(a.EndTime, 0).UTC().Format(time.RFC3339),
		WorkoutSeconds: a.WorkoutTime,
		TotalSeconds:   a.TotalTime,
		DistanceMeters: a.Distance,
	}
}
