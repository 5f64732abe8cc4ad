package services

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/ruralpay/banking/internal/models"
	"github.com/sirupsen/logrus"
)

const Pacs008MessageType = "pacs.008.001.08"

// SettlementEvent is the payload pushed onto the settlement queue for every
// committed transaction.
type SettlementEvent struct {
	MessageID         string                 `json:"messageId"`
	TransactionID     int64                  `json:"transactionId"`
	TransactionType   models.TransactionType `json:"transactionType"`
	AccountNumberFrom string                 `json:"accountNumberFrom,omitempty"`
	AccountNumberTo   string                 `json:"accountNumberTo,omitempty"`
	Amount            string                 `json:"amount"`
	Currency          string                 `json:"currency"`
	CreateDateTime    time.Time              `json:"createDateTime"`
	MessageType       string                 `json:"messageType,omitempty"`
	Document          string                 `json:"document,omitempty"`
}

type SettlementOptions struct {
	Queue    string
	Currency string
	BankBIC  string
}

// SettlementService queues committed transactions on Redis. Transfers carry a
// pacs.008 credit transfer document.
type SettlementService struct {
	client   redis.Cmdable
	queue    string
	currency string
	bic      string
	logger   *logrus.Logger
	now      func() time.Time
	newID    func() string
}

func NewSettlementService(client redis.Cmdable, logger *logrus.Logger, opts SettlementOptions) *SettlementService {
	if opts.Queue == "" {
		opts.Queue = "ledger:settlement"
	}
	if opts.Currency == "" {
		opts.Currency = "EUR"
	}
	if opts.BankBIC == "" {
		opts.BankBIC = "RURALPAY"
	}
	return &SettlementService{
		client:   client,
		queue:    opts.Queue,
		currency: opts.Currency,
		bic:      opts.BankBIC,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Publish pushes the settlement event for record onto the queue.
func (s *SettlementService) Publish(ctx context.Context, record *models.Transaction) error {
	event, err := s.BuildEvent(record)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement event: %w", err)
	}

	if err := s.client.RPush(ctx, s.queue, string(payload)).Err(); err != nil {
		return fmt.Errorf("failed to queue settlement event: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"transaction_id": record.ID,
		"message_id":     event.MessageID,
		"queue":          s.queue,
	}).Info("Transaction queued for settlement")
	return nil
}

func (s *SettlementService) BuildEvent(record *models.Transaction) (*SettlementEvent, error) {
	event := &SettlementEvent{
		MessageID:         s.newID(),
		TransactionID:     record.ID,
		TransactionType:   record.Type,
		AccountNumberFrom: accountNumberString(record.AccountNumberFrom),
		AccountNumberTo:   accountNumberString(record.AccountNumberTo),
		Amount:            record.Amount.StringFixed(models.Scale),
		Currency:          s.currency,
		CreateDateTime:    record.CreatedAt,
	}

	if record.Type == models.TransactionTypeTransfer {
		doc := s.CreatePacs008(event.MessageID, record)
		xmlData, err := ConvertToXML(doc)
		if err != nil {
			return nil, err
		}
		event.MessageType = Pacs008MessageType
		event.Document = xmlData
	}
	return event, nil
}

// CreatePacs008 creates a pacs.008 FIToFICustomerCreditTransfer message for a transfer
func (s *SettlementService) CreatePacs008(msgID string, record *models.Transaction) *pacs_v08.FIToFICustomerCreditTransferV08 {
	creDtTm := s.now()
	settlementDate := record.CreatedAt
	txID := strconv.FormatInt(record.ID, 10)
	amount := record.Amount.InexactFloat64()

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(s.currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "INDA", // settled on the books of this bank
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(txID)}[0],
					EndToEndId: common.Max35Text(txID),
					TxId:       &[]common.Max35Text{common.Max35Text(txID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(s.currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(s.bic)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(accountNumberString(record.AccountNumberFrom))}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(s.bic)}[0],
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(accountNumberString(record.AccountNumberTo))}[0],
				},
			},
		},
	}

	return doc
}

// ConvertToXML converts ISO20022 document to XML string
func ConvertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

func accountNumberString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
