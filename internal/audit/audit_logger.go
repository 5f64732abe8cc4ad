package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/banking/internal/models"
	"github.com/sirupsen/logrus"
)

// Event is one audit record. It is written as the fields of a single log entry.
type Event struct {
	Timestamp     time.Time
	EventType     string
	TransactionID int64
	From          string
	To            string
	Amount        string
	Status        string
	Details       any
}

// Logger writes audit events as structured log entries.
type Logger struct {
	logger *logrus.Logger
}

func NewLogger(logger *logrus.Logger) *Logger {
	return &Logger{logger: logger}
}

func (a *Logger) LogTransaction(record *models.Transaction) {
	a.log(Event{
		Timestamp:     record.CreatedAt,
		EventType:     string(record.Type),
		TransactionID: record.ID,
		From:          accountString(record.AccountNumberFrom),
		To:            accountString(record.AccountNumberTo),
		Amount:        record.Amount.StringFixed(models.Scale),
		Status:        "SUCCESS",
	})
}

func (a *Logger) LogError(txType models.TransactionType, from, to string, amount string, err error) {
	a.log(Event{
		Timestamp: models.Now(),
		EventType: string(txType),
		From:      from,
		To:        to,
		Amount:    amount,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	a.logger.WithFields(logrus.Fields{
		"audit":          true,
		"event_type":     event.EventType,
		"transaction_id": event.TransactionID,
		"from":           event.From,
		"to":             event.To,
		"amount":         event.Amount,
		"status":         event.Status,
		"details":        event.Details,
		"event_time":     event.Timestamp,
	}).Info("AUDIT")
}

func accountString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
