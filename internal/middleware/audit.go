package middleware

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jazanet/backend/internal/database"
	"github.com/jazanet/backend/internal/models"
)

// AuditLogger middleware logs mutating API actions to the audit trail
func AuditLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip non-modifying requests
		method := c.Method()
		if method == "GET" || method == "HEAD" || method == "OPTIONS" {
			return c.Next()
		}

		// Skip certain paths
		path := c.Path()
		skipPaths := []string{"/api/auth/login", "/health"}
		for _, skip := range skipPaths {
			if strings.HasPrefix(path, skip) {
				return c.Next()
			}
		}

		user := GetCurrentUser(c)
		ip := c.IP()

		// Capture request body before handlers consume it
		var requestBody []byte
		if method == "POST" || method == "PUT" || method == "PATCH" {
			requestBody = c.Body()
		}

		// For DELETE, resolve the entity name before it is gone
		var nameBeforeDelete string
		if method == "DELETE" {
			nameBeforeDelete = resourceName(resourceFromPath(path), idFromPath(path))
		}

		err := c.Next()

		// Only log successful responses
		statusCode := c.Response().StatusCode()
		if statusCode >= 200 && statusCode < 400 && user != nil {
			writeAuditEntry(user, method, path, ip, requestBody, nameBeforeDelete)
		}

		return err
	}
}

// idFromPath gets the numeric ID from URL path
func idFromPath(path string) string {
	idRegex := regexp.MustCompile(`/(\d+)(?:/|$)`)
	matches := idRegex.FindStringSubmatch(path)
	if len(matches) > 1 {
		return matches[1]
	}
	return ""
}

func writeAuditEntry(user *models.User, method, path, ip string, requestBody []byte, preDeleteName string) {
	var action string
	switch {
	case strings.Contains(path, "/disconnect"):
		action = "disconnect"
	case method == "POST":
		action = "create"
	case method == "PUT", method == "PATCH":
		action = "update"
	case method == "DELETE":
		action = "delete"
	default:
		return
	}

	resource := resourceFromPath(path)
	if resource == "" {
		return
	}
	resourceID := idFromPath(path)

	name := preDeleteName
	if name == "" && len(requestBody) > 0 {
		name = nameFromRequestBody(requestBody)
	}
	if name == "" && resourceID != "" {
		name = resourceName(resource, resourceID)
	}

	details := capitalize(action) + " " + resource
	if name != "" {
		details += " \"" + name + "\""
	}

	entry := models.AuditLog{
		TenantID:   user.TenantID,
		UserID:     user.ID,
		Username:   user.Username,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		IPAddress:  ip,
	}
	database.DB.Create(&entry)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// nameFromRequestBody extracts name/username from JSON request body
func nameFromRequestBody(body []byte) string {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}

	for _, field := range []string{"name", "username", "ip_address"} {
		if val, ok := data[field]; ok {
			if strVal, ok := val.(string); ok && strVal != "" {
				return strVal
			}
		}
	}
	return ""
}

// resourceName looks up a display name for the entity
func resourceName(resource, id string) string {
	if id == "" {
		return ""
	}

	switch resource {
	case "subscriber":
		var sub models.Subscriber
		if database.DB.Select("username").First(&sub, id).Error == nil {
			return sub.Username
		}
	case "nas":
		var nas models.Nas
		if database.DB.Select("name").First(&nas, id).Error == nil {
			return nas.Name
		}
	case "package":
		var pkg models.Package
		if database.DB.Select("name").First(&pkg, id).Error == nil {
			return pkg.Name
		}
	case "user":
		var user models.User
		if database.DB.Select("username").First(&user, id).Error == nil {
			return user.Username
		}
	}
	return "#" + id
}

func resourceFromPath(path string) string {
	entityMap := map[string]string{
		"subscribers": "subscriber",
		"nas":         "nas",
		"packages":    "package",
		"sessions":    "session",
		"vouchers":    "voucher",
		"users":       "user",
		"tenants":     "tenant",
	}

	parts := strings.Split(strings.TrimPrefix(path, "/api/"), "/")
	if len(parts) == 0 {
		return ""
	}
	if entity, ok := entityMap[parts[0]]; ok {
		return entity
	}
	return ""
}
