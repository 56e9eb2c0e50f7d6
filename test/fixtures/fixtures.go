package fixtures

import (
	"time"

	"github.com/google/uuid"

	"github.com/afshinator/BatchSMS/internal/model"
)

// ContactsCSV is a small contact export covering the interesting shapes: a
// mobile-only row, a priority-only row, a dual-phone row and a phoneless row.
const ContactsCSV = "First Name,Mobile Phone,Priority Phone\n" +
	"Ann,555-0001,\n" +
	"Bo,,555-0002\n" +
	"Cy,555-0003,555-0004\n" +
	"Dee,,\n"

// RaggedCSV has a row with a missing column that ingestion must drop.
const RaggedCSV = "First Name,Mobile Phone,Priority Phone\n" +
	"Ann,555-0001,\n" +
	"Broken,555-9999\n" +
	"Cy,555-0003,555-0004\n"

var TestRecipients = []model.Recipient{
	{Name: "Ann", Phone: "555-0001", PhoneType: model.PhoneTypeMobile},
	{Name: "Bo", Phone: "555-0002", PhoneType: model.PhoneTypePriority},
	{Name: "Cy", Phone: "555-0003", PhoneType: model.PhoneTypeMobile},
}

var TestMessages = model.MessageSet{
	Slot1: "Hi [name], your appointment is tomorrow.",
	Slot2: "Hi [name], please call us back.",
	Slot3: "Hi [name], thanks for visiting.",
}

func NewTestRunReport(cancelled bool) *model.RunReport {
	started := time.Now().Add(-time.Minute)
	return &model.RunReport{
		RunID:        uuid.NewString(),
		StartedAt:    started,
		FinishedAt:   started.Add(30 * time.Second),
		WasCancelled: cancelled,
		Items: []model.RunItemReport{
			{Position: 0, Name: "Ann", Phone: "555-0001", Status: model.RecipientStatusSent},
			{Position: 1, Name: "Bo", Phone: "555-0002", Status: model.RecipientStatusSent},
			{Position: 2, Name: "Cy", Phone: "555-0003", Status: model.RecipientStatusCancelled},
		},
	}
}
