package smilebus

import (
	"encoding/json"
	"testing"
)

func TestFlexInt64_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  FlexInt64
	}{
		{"integer", `123`, 123},
		{"string number", `"456"`, 456},
		{"empty string", `""`, 0},
		{"negative integer", `-100`, -100},
		{"zero", `0`, 0},
		{"invalid string", `"not a number"`, 0},
		{"null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FlexInt64
			if err := json.Unmarshal([]byte(tt.input), &got); err != nil {
				t.Fatalf("Unmarshal returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("FlexInt64 = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFlexBool_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  FlexBool
	}{
		{"true", `true`, true},
		{"false", `false`, false},
		{"one", `1`, true},
		{"zero", `0`, false},
		{"string one", `"1"`, true},
		{"string zero", `"0"`, false},
		{"string true", `"true"`, true},
		{"string empty", `""`, false},
		{"null", `null`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FlexBool
			if err := json.Unmarshal([]byte(tt.input), &got); err != nil {
				t.Fatalf("Unmarshal returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("FlexBool = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResponse_Decode(t *testing.T) {
	payload := `{
		"result": "success",
		"data": [{
			"id_city": 9,
			"city_name": "Riga",
			"city_slug": "riga",
			"is_waypoint": 0,
			"is_top": 1,
			"stops": [{
				"id": 100,
				"title": "Central",
				"gps": "56.9,24.1",
				"photo_url": null,
				"order": 1,
				"is_default": 1
			}]
		}]
	}`

	var resp Response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}

	if !resp.HasData() {
		t.Fatal("HasData() = false, want true")
	}
	if len(resp.Data) != 1 {
		t.Fatalf("len(Data) = %d, want 1", len(resp.Data))
	}

	city := resp.Data[0]
	if city.ID != 9 || city.Name != "Riga" {
		t.Errorf("city = %d/%q, want 9/Riga", city.ID, city.Name)
	}
	if city.Slug == nil || *city.Slug != "riga" {
		t.Errorf("slug = %v, want riga", city.Slug)
	}
	if bool(city.IsWaypoint) || !bool(city.IsTop) {
		t.Errorf("flags = waypoint=%v top=%v, want waypoint=false top=true", city.IsWaypoint, city.IsTop)
	}
	if len(city.Stops) != 1 {
		t.Fatalf("len(Stops) = %d, want 1", len(city.Stops))
	}

	stop := city.Stops[0]
	if stop.ID != 100 || stop.Title != "Central" {
		t.Errorf("stop = %d/%q, want 100/Central", stop.ID, stop.Title)
	}
	if stop.GPS == nil || *stop.GPS != "56.9,24.1" {
		t.Errorf("gps = %v, want 56.9,24.1", stop.GPS)
	}
	if stop.PhotoURL != nil {
		t.Errorf("photo_url = %v, want nil", stop.PhotoURL)
	}
	if stop.Order != 1 || !bool(stop.IsDefault) {
		t.Errorf("order=%d is_default=%v, want 1/true", stop.Order, stop.IsDefault)
	}
}

func TestResponse_HasData(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"success with data", `{"result":"success","data":[{"id_city":1,"city_name":"A"}]}`, true},
		{"success empty data", `{"result":"success","data":[]}`, false},
		{"success null data", `{"result":"success","data":null}`, false},
		{"error result", `{"result":"error","data":[{"id_city":1,"city_name":"A"}]}`, false},
		{"missing fields", `{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp Response
			if err := json.Unmarshal([]byte(tt.input), &resp); err != nil {
				t.Fatalf("Unmarshal returned error: %v", err)
			}
			if got := resp.HasData(); got != tt.want {
				t.Errorf("HasData() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCity_Validate(t *testing.T) {
	valid := City{ID: 9, Name: "Riga", Stops: []Stop{{ID: 100, Title: "Central"}}}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid city: unexpected error %v", err)
	}

	tests := []struct {
		name string
		city City
	}{
		{"missing id", City{Name: "Riga"}},
		{"negative id", City{ID: -1, Name: "Riga"}},
		{"missing name", City{ID: 9}},
		{"blank name", City{ID: 9, Name: "   "}},
		{"stop missing id", City{ID: 9, Name: "Riga", Stops: []Stop{{Title: "Central"}}}},
		{"stop missing title", City{ID: 9, Name: "Riga", Stops: []Stop{{ID: 100}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.city.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
