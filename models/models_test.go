package models

import (
	"testing"

	json "github.com/goccy/go-json"
)

func TestQueryResponseParsing(t *testing.T) {
	testJSON := `{
        "result": "0000",
        "message": "OK",
        "data": {
            "count": 1,
            "totalPage": 4,
            "pageNumber": 1,
            "dataList": [{
                "labelId": "414378158278627328",
                "name": "Morning Run",
                "sportType": 100,
                "startTime": 1700000000,
                "endTime": 1700003600,
                "workoutTime": 3500,
                "totalTime": 3600,
                "distance": 10250.5
            }]
        }
    }`

	var qr QueryResponse
	if err := json.Unmarshal([]byte(testJSON), &qr); err != nil {
		t.Fatalf("failed to parse query response: %v", err)
	}

	if qr.Result != ResultOK {
		t.Errorf("expected result 0000, got %s", qr.Result)
	}
	if qr.Data.TotalPage != 4 {
		t.Errorf("expected totalPage 4, got %d", qr.Data.TotalPage)
	}
	if len(qr.Data.DataList) != 1 {
		t.Fatal("expected 1 activity")
	}

	act := qr.Data.DataList[0]
	if act.LabelID != "414378158278627328" {
		t.Errorf("unexpected labelId %s", act.LabelID)
	}
	if act.SportName() != "running" {
		t.Errorf("expected running, got %s", act.SportName())
	}
	if act.Distance != 10250.5 {
		t.Errorf("unexpected distance %v", act.Distance)
	}
}

func TestSportNameFallsBackToOther(t *testing.T) {
	act := Activity{SportType: 999}
	if got := act.SportName(); got != "other" {
		t.Errorf("expected other for unknown sport code, got %s", got)
	}
}

func TestFilePrefixIsDateThenID(t *testing.T) {
	act := Activity{LabelID: "abc123", StartTime: 1700000000} // 2023-11-14 UTC
	if got := act.FilePrefix(); got != "2023-11-14_abc123" {
		t.Errorf("unexpected file prefix %s", got)
	}
}

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in       string
		want     ExportFormat
		fileType int
	}{
		{"fit", FormatFIT, 4},
		{"TCX", FormatTCX, 3},
		{" gpx ", FormatGPX, 1},
		{"kml", FormatKML, 2},
		{"csv", FormatCSV, 0},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.in)
		if err != nil {
			t.Errorf("ParseFormat(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseFormat(%q) = %s, want %s", tc.in, got, tc.want)
		}
		if got.FileType() != tc.fileType {
			t.Errorf("%s file type = %d, want %d", got, got.FileType(), tc.fileType)
		}
	}

	if _, err := ParseFormat("docx"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseFormatsDropsDuplicates(t *testing.T) {
	formats, err := ParseFormats([]string{"fit", "tcx", "FIT"})
	if err != nil {
		t.Fatalf("ParseFormats failed: %v", err)
	}
	if len(formats) != 2 {
		t.Errorf("expected 2 formats, got %v", formats)
	}

	if _, err := ParseFormats(nil); err == nil {
		t.Error("expected error for empty format list")
	}
}

func TestMetadataFromActivity(t *testing.T) {
	act := Activity{
		LabelID:     "abc123",
		Name:        "Evening Ride",
		SportType:   200,
		StartTime:   1700000000,
		EndTime:     1700003600,
		WorkoutTime: 3500,
		TotalTime:   3600,
		Distance:    30000,
	}

	meta := NewMetadata(act)
	if meta.Sport != "cycling" {
		t.Errorf("expected cycling, got %s", meta.Sport)
	}
	if meta.StartTime != "2023-11-14T22:13:20Z" {
		t.Errorf("unexpected start time %s", meta.StartTime)
	}
	if meta.EndTime != "2023-11-14T23:13:20Z" {
		t.Errorf("unexpected end time %s", meta.EndTime)
	}
	if meta.DistanceMeters != 30000 {
		t.Errorf("unexpected distance %v", meta.DistanceMeters)
	}
}
