// Package bounce builds RFC 3462 delivery-status reports for messages the
// dispatcher could not deliver, and requeues them through the spool.
package bounce

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/textproto"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/infodancer/mailserv/internal/address"
	"github.com/infodancer/mailserv/internal/smtpclient"
	"github.com/infodancer/mailserv/internal/spool"
)

// dateFormat is the RFC 2822 date layout used in report headers.
const dateFormat = "Mon, 2 Jan 2006 15:04:05 -0700"

// failedStatus is the enhanced status code reported for every failure.
var failedStatus = smtp.EnhancedCode{5, 1, 2}

// Report describes one undeliverable message.
type Report struct {
	// Hostname is the reporting MTA name.
	Hostname string

	// Sender is the original envelope sender. The report is addressed to it.
	Sender address.Mailbox

	// Unreachable is the recipient that could not be reached.
	Unreachable address.Mailbox

	// Reason selects the explanation text.
	Reason smtpclient.FailReason

	// ArrivalDate is when the original message entered the spool.
	ArrivalDate time.Time

	// Original is the undeliverable message payload without the spool
	// terminator.
	Original io.Reader
}

// WriteToSpool generates the report and commits it to the spool directory,
// addressed to the original sender from Postmaster at the sender's domain.
// The dispatcher picks it up like any other spooled message.
// Returns the committed spool path.
func WriteToSpool(dir string, rep *Report) (string, error) {
	env := spool.Envelope{
		Sender: address.Mailbox{LocalPart: "Postmaster", Domain: rep.Sender.Domain},
		Recipients: []address.Mailbox{
			rep.Sender,
		},
	}

	w, err := spool.NewWriter(dir, env)
	if err != nil {
		return "", fmt.Errorf("creating bounce spool file: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(Generate(pw, rep))
	}()

	if err := w.WritePayload(pr); err != nil {
		w.Abort()
		return "", fmt.Errorf("writing bounce report: %w", err)
	}

	path, err := w.Commit()
	if err != nil {
		return "", fmt.Errorf("committing bounce: %w", err)
	}
	return path, nil
}

// Generate writes the complete report message to w: header, human-readable
// part, machine-readable delivery status, and the original message.
func Generate(w io.Writer, rep *Report) error {
	mw := textproto.NewMultipartWriter(w)

	now := time.Now()

	// Header.Add prepends, so fields are added in reverse of output order.
	header := textproto.Header{}
	header.Add("Message-Id", fmt.Sprintf("<%s@%s>", uuid.NewString(), rep.Hostname))
	header.Add("Content-Type", "multipart/report; report-type=delivery-status; boundary="+mw.Boundary())
	header.Add("MIME-Version", "1.0")
	header.Add("Date", now.Format(dateFormat))
	header.Add("Subject", "Mail System Error - Returned Mail")
	header.Add("To", rep.Sender.String())
	header.Add("From", fmt.Sprintf("\"Mail Administrator\" <postmaster@%s>", rep.Sender.Domain))

	if err := textproto.WriteHeader(w, header); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}

	if err := writeExplanation(mw, rep); err != nil {
		return err
	}
	if err := writeDeliveryStatus(mw, rep); err != nil {
		return err
	}
	if err := writeOriginal(mw, rep); err != nil {
		return err
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing report: %w", err)
	}
	return nil
}

// writeExplanation writes the human-readable text/plain part.
func writeExplanation(mw *textproto.MultipartWriter, rep *Report) error {
	partHeader := textproto.Header{}
	partHeader.Add("Content-Type", "text/plain")

	part, err := mw.CreatePart(partHeader)
	if err != nil {
		return fmt.Errorf("creating explanation part: %w", err)
	}

	if _, err := io.WriteString(part, "This Message was undeliverable due to the following reason:\r\n\r\n"); err != nil {
		return err
	}
	if _, err := io.WriteString(part, reasonText(rep)); err != nil {
		return err
	}

	trailer := fmt.Sprintf(
		"The following recipient did not receive this message:\r\n"+
			"\r\n"+
			"\t<%s>\r\n"+
			"\r\n"+
			"Please reply to Postmaster@%s\r\n"+
			"if you believe this message to be in error.\r\n",
		rep.Unreachable.String(), rep.Sender.Domain)
	if _, err := io.WriteString(part, trailer); err != nil {
		return err
	}
	return nil
}

// reasonText returns the explanation paragraph for the failure class,
// ending with a blank line.
func reasonText(rep *Report) string {
	domain := rep.Unreachable.Domain

	switch rep.Reason {
	case smtpclient.FailMailboxNotFound:
		return "Your message was not delivered because the destination mailbox\r\n" +
			"was not found.\r\n\r\n"

	case smtpclient.FailHostNotFound:
		return "Your message was not delivered because the destination computer\r\n" +
			"was not found.\r\n" +
			"\r\n" +
			"It is also possible that a network problem caused this situation,\r\n" +
			"so if you are sure that the address is correct then try to send\r\n" +
			"the message again.\r\n" +
			"\r\n" +
			"\tHost " + domain + " not found\r\n\r\n"

	case smtpclient.FailCouldNotConnect:
		return "Your message was not delivered because the destination computer\r\n" +
			"could not be reached.\r\n" +
			"\r\n" +
			"It is also possible that a network problem caused this situation,\r\n" +
			"so you might want to send this message again.\r\n" +
			"\r\n" +
			"\tCould not connect host " + domain + "\r\n\r\n"

	case smtpclient.FailRejectedSender:
		return "Your message was rejected by " + domain + "\r\n\r\n"

	default:
		return "Your message could not be delivered.\r\n\r\n"
	}
}

// writeDeliveryStatus writes the machine-readable message/delivery-status part.
func writeDeliveryStatus(mw *textproto.MultipartWriter, rep *Report) error {
	partHeader := textproto.Header{}
	partHeader.Add("Content-Type", "message/delivery-status")

	part, err := mw.CreatePart(partHeader)
	if err != nil {
		return fmt.Errorf("creating delivery-status part: %w", err)
	}

	arrival := rep.ArrivalDate
	if arrival.IsZero() {
		arrival = time.Now()
	}

	perMessage := textproto.Header{}
	perMessage.Add("Arrival-Date", arrival.Format(dateFormat))
	perMessage.Add("Reporting-MTA", "dns; "+rep.Hostname)
	if err := textproto.WriteHeader(part, perMessage); err != nil {
		return err
	}

	perRecipient := textproto.Header{}
	perRecipient.Add("Remote-MTA", "dns; "+rep.Unreachable.Domain)
	perRecipient.Add("Status", fmt.Sprintf("%d.%d.%d", failedStatus[0], failedStatus[1], failedStatus[2]))
	perRecipient.Add("Action", "failed")
	perRecipient.Add("Final-Recipient", "RFC822; <"+rep.Unreachable.String()+">")
	return textproto.WriteHeader(part, perRecipient)
}

// writeOriginal writes the undeliverable message as a message/rfc822 part.
func writeOriginal(mw *textproto.MultipartWriter, rep *Report) error {
	partHeader := textproto.Header{}
	partHeader.Add("Content-Type", "message/rfc822")

	part, err := mw.CreatePart(partHeader)
	if err != nil {
		return fmt.Errorf("creating original message part: %w", err)
	}
	if _, err := io.Copy(part, rep.Original); err != nil {
		return fmt.Errorf("copying original message: %w", err)
	}
	return nil
}
