package cel

// FilterExpressionExamples are ready-made values for
// ingestion.filter_expression.
var FilterExpressionExamples = map[string]string{
	"skip_noreply":         `!message.from.startsWith("noreply@")`,
	"single_domain":        `message.from.endsWith("@example.com")`,
	"subject_keyword":      `message.subject.lowerAscii().contains("invoice")`,
	"with_attachments":     `message.has_attachments`,
	"direct_recipient":     `"ops@example.com" in message.to`,
	"not_cc_only":          `size(message.to) > 0`,
	"recent_only":          `sent_at > timestamp("2024-01-01T00:00:00Z")`,
	"created_only":         `change_type == "created"`,
	"combined_conditions":  `message.has_attachments && !message.from.startsWith("noreply@") && message.subject != ""`,
	"inbox_resource_match": `resource.contains("Inbox")`,
}
