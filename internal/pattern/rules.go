package pattern

// builtinRules are the stock structured-identifier detectors, in declaration
// order. Order matters: the matcher breaks ties between same-length matches
// at the same position by it.
var builtinRules = []struct {
	Name        string
	Expr        string
	Placeholder string
}{
	{
		Name:        "email",
		Expr:        `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
		Placeholder: "[EMAIL-REDACTED-{n}]",
	},
	{
		Name:        "phone",
		Expr:        `\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`,
		Placeholder: "[PHONE-REDACTED-{n}]",
	},
	{
		Name:        "ssn",
		Expr:        `\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`,
		Placeholder: "[SSN-REDACTED-{n}]",
	},
	{
		Name:        "credit_card",
		Expr:        `\b(?:\d{4}[-\s]?){3}\d{4}\b`,
		Placeholder: "[CREDIT_CARD-REDACTED-{n}]",
	},
	{
		Name:        "ip_address",
		Expr:        `\b(?:\d{1,3}\.){3}\d{1,3}\b`,
		Placeholder: "[IP_ADDRESS-REDACTED-{n}]",
	},
	{
		Name:        "date",
		Expr:        `\b(?:0?[1-9]|[12]\d|3[01])[/.-](?:0?[1-9]|[12]\d|3[01])[/.-](?:\d{4}|\d{2})\b`,
		Placeholder: "[DATE-REDACTED-{n}]",
	},
}
