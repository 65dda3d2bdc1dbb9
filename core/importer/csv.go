package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ParseRows reads header-driven tabular input. Column order is free, header
// names are case-insensitive, columns beyond the known set are ignored, and
// short records are tolerated.
func ParseRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		fields := map[string]string{}
		for i, v := range record {
			if i < len(headers) {
				fields[headers[i]] = strings.TrimSpace(v)
			}
		}
		rows = append(rows, Row{
			Email:               fields["email"],
			Name:                fields["name"],
			TeamName:            fields["team_name"],
			TeamCode:            fields["team_code"],
			Phone:               fields["phone"],
			TShirtSize:          fields["tshirt_size"],
			DietaryRestrictions: fields["dietary_restrictions"],
		})
	}
	return rows, nil
}

var exportColumns = []string{"name", "email", "password", "team_name"}

// WriteCredentials writes the export with its stable four-column order.
func WriteCredentials(w io.Writer, creds []Credential) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportColumns); err != nil {
		return err
	}
	for _, c := range creds {
		if err := cw.Write([]string{c.Name, c.Email, c.Password, c.TeamName}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
