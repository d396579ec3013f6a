package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/logging"
)

var nordnetTypes = map[string]domain.TxType{
	"KJØPT":             domain.TxTypeBuy,
	"SALG":              domain.TxTypeSell,
	"UTBYTTE":           domain.TxTypeDividend,
	"INNSKUDD":          domain.TxTypeDeposit,
	"UTTAK":             domain.TxTypeWithdrawal,
	"UTTAK INTERNET":    domain.TxTypeWithdrawal,
	"DEBETRENTE":        domain.TxTypeInterest,
	"INNLØSN. UTTAK VP": domain.TxTypeSell,
	"AVG KORR":          domain.TxTypeAdjustment,
	"ERSTATNING":        domain.TxTypeDeposit,
	"SALG VALUTA":       domain.TxTypeCurrencyExchange,
	"KJØP VALUTA":       domain.TxTypeCurrencyExchange,
	"AVGIFT":            domain.TxTypeFee,
	"PLATTFORMAVGIFT":   domain.TxTypeFee,
}

// NordnetParser reads Nordnet transaction exports: UTF-16 with BOM, tab
// separated, Norwegian headers.
type NordnetParser struct {
	baseCurrency string
}

func NewNordnetParser(baseCurrency string) *NordnetParser {
	return &NordnetParser{baseCurrency: baseCurrency}
}

func (p *NordnetParser) Parse(ctx context.Context, path string) ([]domain.Record, error) {
	log := logging.FromContext(ctx)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("NordnetParser.Parse: %w", err)
	}
	defer f.Close()

	dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	r := csv.NewReader(transform.NewReader(f, dec))
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("NordnetParser.Parse: header: %w", err)
	}
	idx := headerIndex(header)
	source := filepath.Base(path)

	var out []domain.Record
	line := 1
	for {
		cols, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			log.Warn("unreadable nordnet row skipped", "file", path, "line", line, "error", err)
			continue
		}

		rec, err := p.record(row{cols: cols, idx: idx})
		if err != nil {
			log.Warn("nordnet row skipped", "file", path, "line", line, "error", err)
			continue
		}
		rec.SourceFile = source
		out = append(out, rec)
	}
	return out, nil
}

func (p *NordnetParser) record(r row) (domain.Record, error) {
	rawType := strings.ToUpper(r.get("Transaksjonstype"))
	text := strings.ToUpper(r.get("Transaksjonstekst"))
	txType := classifyNordnet(rawType, text)

	amount1, err := r.num("Beløp")
	if err != nil {
		return domain.Record{}, err
	}
	amount2, err := r.num("Kjøpsverdi")
	if err != nil {
		return domain.Record{}, err
	}
	qty, err := r.num("Antall")
	if err != nil {
		return domain.Record{}, err
	}
	price, err := r.num("Kurs")
	if err != nil {
		return domain.Record{}, err
	}
	rate, err := r.num("Vekslingskurs")
	if err != nil {
		return domain.Record{}, err
	}
	feeRaw, err := r.num("Kurtasje")
	if err != nil {
		return domain.Record{}, err
	}
	feeRate, err := r.num("Valutakurs")
	if err != nil {
		return domain.Record{}, err
	}

	// Valuta.1 belongs to Beløp, Valuta.2 to Kjøpsverdi. Whichever is in
	// base currency is the local amount.
	cur1 := orDefault(r.get("Valuta.1"), p.baseCurrency)
	cur2 := orDefault(r.get("Valuta.2"), p.baseCurrency)

	var amount, amountLocal float64
	currency := cur1
	switch {
	case cur1 == p.baseCurrency && cur2 != p.baseCurrency:
		amount, amountLocal = amount1, amount1
	case cur1 != p.baseCurrency && cur2 == p.baseCurrency:
		amount, amountLocal = amount1, amount2
	default:
		amount, amountLocal = amount1, amount2
		if amount2 == 0 {
			amountLocal = amount1
		}
	}

	switch txType {
	case domain.TxTypeBuy, domain.TxTypeWithdrawal, domain.TxTypeTransferOut:
		amount, amountLocal = -math.Abs(amount), -math.Abs(amountLocal)
	case domain.TxTypeSell, domain.TxTypeDeposit, domain.TxTypeTransferIn, domain.TxTypeDividend:
		amount, amountLocal = math.Abs(amount), math.Abs(amountLocal)
	}

	if txType == domain.TxTypeSell || strings.Contains(rawType, "UTTAK") {
		qty = -math.Abs(qty)
	} else {
		qty = math.Abs(qty)
	}

	if amountLocal == 0 && amount != 0 && rate != 0 {
		amountLocal = amount * rate
	}

	feeCurrency := orDefault(r.get("Valuta.4"), p.baseCurrency)
	feeLocal := 0.0
	switch {
	case feeCurrency == p.baseCurrency:
		feeLocal = feeRaw
	case feeRaw != 0 && feeRate != 0:
		feeLocal = feeRaw * feeRate
	case feeRaw != 0 && rate != 0:
		feeLocal = feeRaw * rate
	}

	rec := domain.Record{
		ExternalID:        uuid.NewString(),
		AccountExternalID: r.get("Portefølje"),
		ISIN:              r.get("ISIN"),
		Symbol:            r.get("Verdipapir"),
		Type:              txType,
		Quantity:          qty,
		Price:             price,
		Amount:            amount,
		Currency:          currency,
		AmountLocal:       amountLocal,
		ExchangeRate:      rate,
		Description:       text,
		Fee:               feeRaw,
		FeeCurrency:       feeCurrency,
		FeeLocal:          feeLocal,
	}
	if d := r.get("Handelsdag"); d != "" {
		rec.Date, _ = domain.ParseDate(d)
	}
	return rec, nil
}

// classifyNordnet maps a Nordnet transaction type to a standard type.
// Unknown labels pass through for the taxonomy to resolve or reject.
func classifyNordnet(rawType, text string) domain.TxType {
	switch {
	case strings.Contains(text, "INTERNAL") && strings.Contains(rawType, "INNSKUDD"):
		return domain.TxTypeTransferIn
	case strings.Contains(text, "INTERNAL") && strings.Contains(rawType, "UTTAK"):
		return domain.TxTypeTransferOut
	case strings.Contains(rawType, "OVERFØRING") && strings.Contains(rawType, "INNSKUD"):
		return domain.TxTypeDeposit
	case strings.Contains(text, "ÖNSKAR TECKNA"):
		return domain.TxTypeAdjustment
	}
	if t, ok := nordnetTypes[rawType]; ok {
		return t
	}
	switch {
	case strings.Contains(rawType, "RENTE"):
		return domain.TxTypeInterest
	case strings.Contains(rawType, "SKATT"):
		return domain.TxTypeTax
	}
	return domain.TxType(rawType)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return strings.ToUpper(s)
}
