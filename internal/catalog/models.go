// Package catalog holds the registry of known CMS datasets: their identity,
// hosting platform, column metadata, and join hints for cross-dataset work.
package catalog

import "github.com/medlens/medlens/internal/query"

// Platform identifies the API hosting a dataset.
type Platform string

const (
	// PlatformSODA is Socrata/SODA (data.medicare.gov, openpaymentsdata.cms.gov).
	PlatformSODA Platform = "soda"
	// PlatformCMSDataAPI is the data.cms.gov data-api/v1 interface.
	PlatformCMSDataAPI Platform = "cms_data_api"
	// PlatformNPI is the NPI Registry API.
	PlatformNPI Platform = "npi"
	// PlatformBulk is a direct CSV or ZIP download.
	PlatformBulk Platform = "bulk"
)

// Domain is the CMS program area a dataset belongs to.
type Domain string

const (
	DomainHospitalCompare      Domain = "hospital_compare"
	DomainNursingHome          Domain = "nursing_home"
	DomainPhysicianCompare     Domain = "physician_compare"
	DomainMedicareProvider     Domain = "medicare_provider"
	DomainMedicarePartD        Domain = "medicare_part_d"
	DomainProgramStatistics    Domain = "program_statistics"
	DomainOpenPayments         Domain = "open_payments"
	DomainMedicaid             Domain = "medicaid"
	DomainNPIRegistry          Domain = "npi_registry"
	DomainCostReports          Domain = "cost_reports"
	DomainHospitalReadmissions Domain = "hospital_readmissions"
	DomainQualityMeasures      Domain = "quality_measures"
	DomainSpending             Domain = "spending"
)

// ColumnInfo documents one column of a dataset.
type ColumnInfo struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	DataType    string `yaml:"data_type,omitempty" json:"data_type,omitempty"`
	Example     string `yaml:"example,omitempty" json:"example,omitempty"`
}

// Dataset is the catalog entry for one CMS dataset. ID is a Socrata
// four-by-four, a data.cms.gov UUID, or a slug, depending on the platform.
type Dataset struct {
	ID          string       `yaml:"id" json:"id"`
	Title       string       `yaml:"title" json:"title"`
	Description string       `yaml:"description" json:"description"`
	Host        string       `yaml:"host" json:"host"`
	Platform    Platform     `yaml:"platform" json:"platform"`
	Domain      Domain       `yaml:"domain" json:"domain"`
	APIEndpoint string       `yaml:"api_endpoint" json:"api_endpoint"`
	Columns     []ColumnInfo `yaml:"columns,omitempty" json:"columns,omitempty"`
	Keywords    []string     `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Modified    string       `yaml:"modified,omitempty" json:"modified,omitempty"`
	Temporal    string       `yaml:"temporal,omitempty" json:"temporal,omitempty"`
	RecordCount int          `yaml:"record_count,omitempty" json:"record_count,omitempty"`
	JoinKeys    []string     `yaml:"join_keys,omitempty" json:"join_keys,omitempty"`
	Notes       string       `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// SQLName returns the identifier this dataset registers under in the query
// session.
func (d Dataset) SQLName() string {
	return query.SanitizeName(d.Title)
}
