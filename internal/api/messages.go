package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/byefat/backend/internal/middleware"
	"github.com/byefat/backend/internal/provider/openfoodfacts"
	"github.com/byefat/backend/internal/service"
)

var supportedLanguages = []language.Tag{language.English, language.Romanian}

var languageMatcher = language.NewMatcher(supportedLanguages)

const statusNotFoundFormat = "Product not found (status: %d)."

// localized are the errors with a Romanian message. Wrapped errors are
// translated through the sentinel they wrap.
var localized = []struct {
	err error
	ro  string
}{
	{service.ErrProfileNotFound, "Profilul nu a fost găsit."},
	{service.ErrItemNotFound, "Intrarea nu a fost găsită."},
	{service.ErrProductNotFound, "Produsul nu a fost găsit."},
	{service.ErrNotProductOwner, "Doar creatorul poate modifica acest produs."},
	{service.ErrUsernameRequired, "Ai nevoie de un nume de utilizator pentru a publica produse."},
	{service.ErrUsernameTaken, "Numele de utilizator este deja folosit."},
	{service.ErrInvalidUsername, "Numele de utilizator trebuie să aibă 3-15 litere, cifre sau underscore."},
	{service.ErrInvalidDate, "Data trebuie să fie în formatul AAAA-LL-ZZ."},
	{service.ErrInvalidInput, "Date invalide."},
	{service.ErrXPConflict, "Actualizarea XP a intrat în conflict. Încearcă din nou."},
	{service.ErrPermissionDenied, "Nu ai permisiunea pentru această operație."},
	{service.ErrUserExists, "Există deja un cont cu acest email."},
	{service.ErrInvalidCredentials, "Email sau parolă greșită."},
	{service.ErrInvalidToken, "Sesiune invalidă."},
	{service.ErrUnresolvable, "Cererea nu poate fi interpretată ca un aliment."},
	{service.ErrNoOutput, "Modelul AI nu a putut calcula valorile nutriționale."},
	{service.ErrImageAnalysis, "Analiza imaginii a eșuat."},
	{service.ErrEstimatorDisabled, "Estimarea AI nu este configurată."},
	{openfoodfacts.ErrInvalidBarcode, "Format de cod de bare invalid."},
	{openfoodfacts.ErrNotFound, "Produsul nu există în baza de date Open Food Facts."},
	{openfoodfacts.ErrIncomplete, "Date incomplete despre produs."},
	{openfoodfacts.ErrNoNutrition, "Produs găsit, dar lipsesc informațiile nutriționale."},
	{openfoodfacts.ErrFetch, "Nu am putut prelua datele produsului."},
}

var messages = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for _, m := range localized {
		_ = b.SetString(language.Romanian, m.err.Error(), m.ro)
	}
	_ = b.SetString(language.Romanian, "internal server error", "Eroare internă a serverului.")
	_ = b.SetString(language.Romanian, statusNotFoundFormat, "Produsul nu a fost găsit (status: %d).")
	return b
}

// localize returns the message for err in p's language. English keeps the
// full error text; other languages get the wrapped sentinel's message.
func localize(p *message.Printer, err error) string {
	for _, m := range localized {
		if !errors.Is(err, m.err) {
			continue
		}
		if msg := translate(p, m.err.Error()); msg != m.err.Error() {
			return msg
		}
		break
	}
	return translate(p, err.Error())
}

// printerFor picks the best supported language from Accept-Language.
func printerFor(c *gin.Context) *message.Printer {
	tags, _, _ := language.ParseAcceptLanguage(c.GetHeader("Accept-Language"))
	tag, _, _ := languageMatcher.Match(tags...)
	base, _ := tag.Base()
	for _, t := range supportedLanguages {
		if b, _ := t.Base(); b == base {
			tag = t
			break
		}
	}
	return message.NewPrinter(tag, message.Catalog(messages))
}

func translate(p *message.Printer, text string) string {
	return p.Sprintf(strings.ReplaceAll(text, "%", "%%"))
}

// errorStatus maps service and provider errors to HTTP statuses.
func errorStatus(err error) int {
	var statusErr *openfoodfacts.StatusError
	switch {
	case errors.Is(err, service.ErrProfileNotFound),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, openfoodfacts.ErrNotFound),
		errors.As(err, &statusErr):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidDate),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, openfoodfacts.ErrInvalidBarcode):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrUserExists),
		errors.Is(err, service.ErrXPConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrUsernameRequired),
		errors.Is(err, service.ErrUnresolvable),
		errors.Is(err, openfoodfacts.ErrIncomplete),
		errors.Is(err, openfoodfacts.ErrNoNutrition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotProductOwner),
		service.IsPermissionError(err):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrEstimatorDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrNoOutput),
		errors.Is(err, service.ErrImageAnalysis),
		errors.Is(err, openfoodfacts.ErrFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": message} in the caller's language. Server
// faults are logged and their detail is withheld.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := errorStatus(err)
	p := printerFor(c)

	if service.IsPermissionError(err) {
		if r := middleware.Reporter(c); r != nil {
			userID, _ := middleware.UserID(c)
			r.Report(c.Request.Method+" "+c.FullPath(), userID, err)
		}
	}

	var msg string
	var statusErr *openfoodfacts.StatusError
	switch {
	case status == http.StatusInternalServerError:
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		msg = translate(p, "internal server error")
	case errors.As(err, &statusErr):
		msg = p.Sprintf(statusNotFoundFormat, statusErr.Code)
	case errors.Is(err, openfoodfacts.ErrFetch):
		msg = translate(p, openfoodfacts.UserMessage(err))
	default:
		msg = localize(p, err)
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
}
