package handler

import (
	"regwatch/internal/catalog/models"
	dErrors "regwatch/pkg/domain-errors"
)

// RegisterDomainRequest accepts either an fqdn or a name/tld pair.
type RegisterDomainRequest struct {
	FQDN string `json:"fqdn,omitempty"`
	Name string `json:"name,omitempty"`
	TLD  string `json:"tld,omitempty"`
}

func (r RegisterDomainRequest) Validate() error {
	if r.FQDN != "" && (r.Name != "" || r.TLD != "") {
		return dErrors.New(dErrors.CodeValidation, "provide either fqdn or name and tld, not both")
	}
	if r.FQDN == "" && (r.Name == "" || r.TLD == "") {
		return dErrors.New(dErrors.CodeValidation, "fqdn or name and tld are required")
	}
	return nil
}

type SetSnapshotRequest struct {
	IsRegistered *bool `json:"is_registered"`
	ClearStatus  *bool `json:"clear_status"`
}

func (r SetSnapshotRequest) Validate() (models.Snapshot, error) {
	if r.IsRegistered == nil || r.ClearStatus == nil {
		return models.Snapshot{}, dErrors.New(dErrors.CodeValidation, "is_registered and clear_status are required")
	}
	return models.Snapshot{IsRegistered: *r.IsRegistered, ClearStatus: *r.ClearStatus}, nil
}

type DomainResponse struct {
	*models.Domain
	FQDN string `json:"fqdn"`
}

func toDomainResponse(d *models.Domain) DomainResponse {
	return DomainResponse{Domain: d, FQDN: d.FQDN()}
}

type DomainListResponse struct {
	Domains []DomainResponse `json:"domains"`
}

type FlagListResponse struct {
	Flags []*models.Flag `json:"flags"`
}
