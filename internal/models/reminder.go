package models

import (
	"time"

	"cobrapyme/morosidad/internal/utils"
)

// ReminderChannel identifies an outbound reminder channel.
type ReminderChannel string

const (
	ReminderChannelEmail    ReminderChannel = "email"
	ReminderChannelWhatsApp ReminderChannel = "whatsapp"
)

// Default reminder templates. Placeholders: {cliente}, {numero}, {monto}, {fecha}.
const (
	DefaultEmailTemplate    = "Estimado {cliente},\n\nLe recordamos que la factura {numero} por {monto} vence el {fecha}.\n\nSaludos."
	DefaultWhatsAppTemplate = "Hola {cliente}, recordatorio amistoso: factura {numero} por {monto} vence el {fecha}. ¡Gracias!"
)

// ReminderConfig holds one owner's reminder preferences and message templates.
type ReminderConfig struct {
	Base             `bson:",inline"`
	OwnerID          utils.SixID `bson:"owner_id" json:"owner_id"`
	EmailEnabled     bool        `bson:"email_enabled" json:"email_enabled"`
	WhatsAppEnabled  bool        `bson:"whatsapp_enabled" json:"whatsapp_enabled"`
	LeadDays         int         `bson:"lead_days" json:"lead_days"`
	EmailTemplate    string      `bson:"email_template" json:"email_template"`
	WhatsAppTemplate string      `bson:"whatsapp_template" json:"whatsapp_template"`
}

// ReminderLog is the append-only record of one outbound reminder attempt.
// Rows are only ever created by the reminder-send path, never mutated.
type ReminderLog struct {
	Base      `bson:",inline"`
	InvoiceID utils.SixID     `bson:"invoice_id" json:"invoice_id"`
	Channel   ReminderChannel `bson:"channel" json:"channel"`
	SentAt    time.Time       `bson:"sent_at" json:"sent_at"`
	Success   bool            `bson:"success" json:"success"`
	ErrorText string          `bson:"error_text,omitempty" json:"error_text,omitempty"`
}
