package core

import "errors"

var (
	ErrInvalidDay          = errors.New("invalid day")
	ErrInvalidMonth        = errors.New("invalid month")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidPeriod       = errors.New("invalid period")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyDescription    = errors.New("empty description")
	ErrDescriptionTooLong  = errors.New("description too long (max 200 characters)")
	ErrMissingAccount      = errors.New("missing account")
	ErrUnknownAccount      = errors.New("unknown account")
	ErrNoAccounts          = errors.New("no accounts configured")
	ErrInvalidType         = errors.New("invalid transaction type")
	ErrInvalidNature       = errors.New("invalid transaction nature")
	ErrInvalidInstallments = errors.New("invalid installment count")
	ErrInvalidAccountType  = errors.New("invalid account type")
)

// MaxDescriptionLength bounds descriptions, including the installment suffix.
const MaxDescriptionLength = 200

// MaxInstallments bounds the number of members of an installment chain.
const MaxInstallments = 60

// MaxYear is the last year a Date can be stored and parsed in.
const MaxYear = 9999

// UncategorizedLabel is the aggregation bucket for transactions without a category.
const UncategorizedLabel = "Uncategorized"
