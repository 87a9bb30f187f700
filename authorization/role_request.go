package authorization

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// roleRequestPayload is the body of a support-role application.
type roleRequestPayload struct {
	Role    string `json:"role"`
	Message string `json:"message"`
	Source  string `json:"source"`
}

// roleRequestMailer sends role applications to the configured admin mailbox
// over SMTP.
type roleRequestMailer struct {
	host      string
	port      int
	username  string
	password  string
	from      string
	recipient string
	subject   string
}

// newRoleRequestMailerFromEnv loads the SMTP settings. Returns nil when the
// mailer is not configured; role requests are then stored-and-forgotten with
// a warning in the response.
func newRoleRequestMailerFromEnv() *roleRequestMailer {
	recipient := sanitizeMailHeader(os.Getenv("ROLE_REQUEST_RECIPIENT_EMAIL"))
	host := strings.TrimSpace(os.Getenv("ROLE_REQUEST_SMTP_HOST"))
	if recipient == "" || host == "" {
		return nil
	}

	portValue := strings.TrimSpace(os.Getenv("ROLE_REQUEST_SMTP_PORT"))
	if portValue == "" {
		portValue = "587"
	}
	port, err := strconv.Atoi(portValue)
	if err != nil || port <= 0 {
		log.Printf("authorization: invalid ROLE_REQUEST_SMTP_PORT %q, role request mail disabled", portValue)
		return nil
	}

	username := strings.TrimSpace(os.Getenv("ROLE_REQUEST_SMTP_USERNAME"))
	password := os.Getenv("ROLE_REQUEST_SMTP_PASSWORD")
	if username == "" || strings.TrimSpace(password) == "" {
		log.Printf("authorization: ROLE_REQUEST_SMTP credentials missing, role request mail disabled")
		return nil
	}

	from := sanitizeMailHeader(os.Getenv("ROLE_REQUEST_MAIL_FROM"))
	if from == "" {
		from = username
	}

	return &roleRequestMailer{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		from:      from,
		recipient: recipient,
		subject:   sanitizeMailHeader(os.Getenv("ROLE_REQUEST_MAIL_SUBJECT")),
	}
}

// Send mails one role application with the requesting user's details.
func (m *roleRequestMailer) Send(user *User, payload *roleRequestPayload) error {
	if m == nil {
		return errors.New("role request mailer not configured")
	}
	if user == nil {
		return errors.New("user information is required")
	}

	subject := m.subject
	if subject == "" {
		subject = "Helpdesk Role Request"
	}
	subject = encodeMailSubject(subject)

	now := time.Now().UTC()

	var body strings.Builder
	body.WriteString("A new helpdesk role request has been submitted.\r\n\r\n")
	fmt.Fprintf(&body, "User ID: %d\r\n", user.ID)
	if user.Username != "" {
		fmt.Fprintf(&body, "Username: %s\r\n", sanitizeMailHeader(user.Username))
	}
	if user.DisplayName != "" {
		fmt.Fprintf(&body, "Display Name: %s\r\n", sanitizeMailHeader(user.DisplayName))
	}
	fmt.Fprintf(&body, "Requested Role: %s\r\n", sanitizeMailHeader(payload.Role))
	fmt.Fprintf(&body, "Requested At (UTC): %s\r\n", now.Format(time.RFC3339))
	if payload.Source != "" {
		fmt.Fprintf(&body, "Source: %s\r\n", sanitizeMailHeader(payload.Source))
	}
	if strings.TrimSpace(payload.Message) != "" {
		body.WriteString("\r\nAdditional Message:\r\n")
		body.WriteString(strings.TrimSpace(payload.Message))
		body.WriteString("\r\n")
	}

	headers := []string{
		fmt.Sprintf("From: %s", m.from),
		fmt.Sprintf("To: %s", m.recipient),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Transfer-Encoding: 8bit",
		fmt.Sprintf("Date: %s", now.Format(time.RFC1123Z)),
	}

	var message strings.Builder
	for _, header := range headers {
		message.WriteString(header)
		message.WriteString("\r\n")
	}
	message.WriteString("\r\n")
	message.WriteString(body.String())

	address := fmt.Sprintf("%s:%d", m.host, m.port)
	auth := smtp.PlainAuth("", m.username, m.password, m.host)

	return smtp.SendMail(address, auth, m.from, []string{m.recipient}, []byte(message.String()))
}

// handleRoleRequest lets an authenticated user apply for the SUPPORT role.
// The application is mailed to the admin mailbox; granting stays a manual
// admin action.
func (m *Module) handleRoleRequest(c *gin.Context) {
	if m == nil || m.userStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "role request service unavailable"})
		return
	}

	var payload roleRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	role := strings.ToUpper(strings.TrimSpace(payload.Role))
	if role == "" {
		role = RoleSupport
	}
	if role != RoleSupport && role != RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only SUPPORT or ADMIN roles can be requested"})
		return
	}
	payload.Role = role

	userID, ok := CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx := c.Request.Context()
	user, err := m.userStore.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		}
		return
	}

	response := gin.H{
		"message": "role request submitted",
		"role":    role,
	}
	if m.roleMailer == nil {
		response["warning"] = "role request mail is not configured, contact an administrator directly"
	} else if err := m.roleMailer.Send(user, &payload); err != nil {
		log.Printf("authorization: send role request mail: %v", err)
		response["warning"] = "failed to notify administrators"
	}

	c.JSON(http.StatusOK, response)
}

func encodeMailSubject(subject string) string {
	if subject == "" || isASCII(subject) {
		return subject
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(subject))
	return fmt.Sprintf("=?UTF-8?B?%s?=", encoded)
}

func isASCII(value string) bool {
	for i := 0; i < len(value); i++ {
		if value[i] >= 0x80 {
			return false
		}
	}
	return true
}

// sanitizeMailHeader strips CR/LF to avoid header injection.
func sanitizeMailHeader(value string) string {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.ReplaceAll(trimmed, "\r", " ")
	return strings.ReplaceAll(trimmed, "\n", " ")
}
