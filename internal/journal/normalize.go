package journal

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"tradejournal/internal/models"
	"tradejournal/pkg/utils"
)

// normalize.go - приведение "сырых" записей сделок к строгой модели
//
// Экспорт журнала может содержать:
// - числа в виде строк ("100.5", "$1,200")
// - outcome в разном регистре ('Win', 'LOSS')
// - ключи в camelCase (entryPrice) и snake_case (entry_price)
// - даты в RFC3339, YYYY-MM-DD, unix (с/мс) или объектом {seconds, nanoseconds}
//
// Нечисловые значения заменяются нулем с пометкой DataIssue. Фатальны только
// отсутствие символа, неизвестное направление и отсутствие entry_time.

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LooseValue значение поля в произвольном JSON представлении
type LooseValue struct {
	Raw     string // строка без кавычек или JSON литерал
	Present bool
	Quoted  bool
}

// Loose создает строковое LooseValue
func Loose(s string) LooseValue {
	s = strings.TrimSpace(s)
	if s == "" {
		return LooseValue{}
	}
	return LooseValue{Raw: s, Present: true, Quoted: true}
}

// UnmarshalJSON принимает строку, число, bool или объект; null и "" = отсутствует
func (v *LooseValue) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*v = LooseValue{}
		return nil
	}

	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*v = Loose(str)
		return nil
	}

	*v = LooseValue{Raw: s, Present: true}
	return nil
}

// MarshalJSON сохраняет исходное представление
func (v LooseValue) MarshalJSON() ([]byte, error) {
	if !v.Present {
		return []byte("null"), nil
	}
	if v.Quoted {
		return json.Marshal(v.Raw)
	}
	return []byte(v.Raw), nil
}

// RawTrade запись сделки в нестрогом виде (импорт, ввод через API)
type RawTrade struct {
	ID           LooseValue `json:"id"`
	Symbol       LooseValue `json:"symbol"`
	Direction    LooseValue `json:"direction"`
	Status       LooseValue `json:"status"`
	EntryPrice   LooseValue `json:"entry_price"`
	ExitPrice    LooseValue `json:"exit_price"`
	PositionSize LooseValue `json:"position_size"`
	StopLoss     LooseValue `json:"stop_loss"`
	TakeProfit   LooseValue `json:"take_profit"`
	EntryTime    LooseValue `json:"entry_time"`
	ExitTime     LooseValue `json:"exit_time"`
	Outcome      LooseValue `json:"outcome"`
	ProfitLoss   LooseValue `json:"profit_loss"`
	SetupType    LooseValue `json:"setup_type"`
	Notes        LooseValue `json:"notes"`
	Tags         []string   `json:"tags"`
}

// rawFields сопоставляет каноническое имя (нижний регистр без "_") полю записи.
// Порядок алиасов задает приоритет при дублировании.
var rawFields = []struct {
	aliases []string
	field   func(*RawTrade) *LooseValue
}{
	{[]string{"id", "tradeid"}, func(r *RawTrade) *LooseValue { return &r.ID }},
	{[]string{"symbol", "ticker", "instrument"}, func(r *RawTrade) *LooseValue { return &r.Symbol }},
	{[]string{"direction", "side", "type"}, func(r *RawTrade) *LooseValue { return &r.Direction }},
	{[]string{"status"}, func(r *RawTrade) *LooseValue { return &r.Status }},
	{[]string{"entryprice", "entry", "openprice"}, func(r *RawTrade) *LooseValue { return &r.EntryPrice }},
	{[]string{"exitprice", "exit", "closeprice"}, func(r *RawTrade) *LooseValue { return &r.ExitPrice }},
	{[]string{"positionsize", "size", "quantity", "qty"}, func(r *RawTrade) *LooseValue { return &r.PositionSize }},
	{[]string{"stoploss", "stop", "sl"}, func(r *RawTrade) *LooseValue { return &r.StopLoss }},
	{[]string{"takeprofit", "target", "tp"}, func(r *RawTrade) *LooseValue { return &r.TakeProfit }},
	{[]string{"entrytime", "entrydate", "date", "openedat"}, func(r *RawTrade) *LooseValue { return &r.EntryTime }},
	{[]string{"exittime", "exitdate", "closedat"}, func(r *RawTrade) *LooseValue { return &r.ExitTime }},
	{[]string{"outcome", "result"}, func(r *RawTrade) *LooseValue { return &r.Outcome }},
	{[]string{"profitloss", "pnl", "profit"}, func(r *RawTrade) *LooseValue { return &r.ProfitLoss }},
	{[]string{"setuptype", "setup", "strategy"}, func(r *RawTrade) *LooseValue { return &r.SetupType }},
	{[]string{"notes", "note", "comment"}, func(r *RawTrade) *LooseValue { return &r.Notes }},
}

func canonicalKey(key string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(key))
}

// UnmarshalJSON разбирает запись с любыми поддерживаемыми именами ключей
func (r *RawTrade) UnmarshalJSON(b []byte) error {
	var fields map[string]jsoniter.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	// Ключи сортируются, чтобы при коллизии (entry_price и entryPrice) результат был детерминированным
	byCanon := make(map[string]jsoniter.RawMessage, len(fields))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		c := canonicalKey(k)
		if _, dup := byCanon[c]; !dup {
			byCanon[c] = fields[k]
		}
	}

	*r = RawTrade{}
	for _, f := range rawFields {
		for _, alias := range f.aliases {
			msg, ok := byCanon[alias]
			if !ok {
				continue
			}
			var v LooseValue
			if err := v.UnmarshalJSON(msg); err != nil {
				return fmt.Errorf("%w: field %s: %v", ErrMalformedRecord, alias, err)
			}
			if v.Present {
				*f.field(r) = v
				break
			}
		}
	}

	if msg, ok := byCanon["tags"]; ok {
		r.Tags = parseTags(msg)
	}
	return nil
}

// parseTags принимает массив строк или строку через запятую
func parseTags(msg jsoniter.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(msg, &list); err != nil {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil
		}
		list = strings.Split(s, ",")
	}

	tags := make([]string, 0, len(list))
	for _, t := range list {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// ============================================================
// Normalizer
// ============================================================

// Normalizer приводит RawTrade к models.Trade
type Normalizer struct {
	// Location - timezone для дат без смещения (по умолчанию UTC)
	Location *time.Location
	// UserID проставляется в каждую нормализованную сделку
	UserID string
}

// Normalize нормализует запись в нестрогом режиме.
//
// index - позиция записи во входном наборе (для DataIssue).
// Возвращает ошибку только для фатальных проблем; остальные попадают в issues.
func (n Normalizer) Normalize(index int, raw RawTrade) (models.Trade, []models.DataIssue, error) {
	issues := []models.DataIssue{}
	trade := models.Trade{UserID: n.UserID, Tags: raw.Tags}
	if trade.Tags == nil {
		trade.Tags = []string{}
	}

	if raw.ID.Present {
		if id, err := strconv.ParseInt(raw.ID.Raw, 10, 64); err == nil {
			trade.ID = id
		}
	}

	addIssue := func(field string, kind models.IssueKind, format string, args ...interface{}) {
		issues = append(issues, models.DataIssue{
			TradeID: trade.ID,
			Index:   index,
			Field:   field,
			Kind:    kind,
			Message: fmt.Sprintf(format, args...),
		})
	}

	// Фатальные поля
	trade.Symbol = utils.NormalizeSymbol(raw.Symbol.Raw)
	if trade.Symbol == "" {
		return models.Trade{}, nil, fmt.Errorf("record %d: %w", index, ErrMissingSymbol)
	}
	if utf8.RuneCountInString(trade.Symbol) > utils.MaxSymbolLength {
		return models.Trade{}, nil, fmt.Errorf("record %d: %w: longer than %d characters", index, ErrSymbolTooLong, utils.MaxSymbolLength)
	}

	dir, ok := parseDirection(raw.Direction.Raw)
	if !ok {
		return models.Trade{}, nil, fmt.Errorf("record %d: %w: %q", index, ErrUnknownDirection, raw.Direction.Raw)
	}
	trade.Direction = dir

	if !raw.EntryTime.Present {
		return models.Trade{}, nil, fmt.Errorf("record %d: %w", index, ErrMissingEntryTime)
	}
	entryTime, err := parseTime(raw.EntryTime, n.location())
	if err != nil {
		return models.Trade{}, nil, fmt.Errorf("record %d: %w: %v", index, ErrMissingEntryTime, err)
	}
	trade.EntryTime = entryTime

	// Обязательные числовые поля: при ошибке - ноль и issue
	requiredDecimal := func(field string, v LooseValue) decimal.Decimal {
		if !v.Present {
			addIssue(field, models.IssueMissingField, "%s is missing, treated as 0", field)
			return decimal.Zero
		}
		d, err := parseDecimal(v)
		if err != nil {
			addIssue(field, models.IssueMalformedNumber, "%s %q is not a number, treated as 0", field, v.Raw)
			return decimal.Zero
		}
		if !d.IsPositive() {
			addIssue(field, models.IssueNonPositiveValue, "%s must be positive, got %s", field, d.String())
		}
		return d
	}

	// Необязательные числовые поля: при ошибке - отсутствует и issue
	optionalDecimal := func(field string, v LooseValue) decimal.NullDecimal {
		if !v.Present {
			return decimal.NullDecimal{}
		}
		d, err := parseDecimal(v)
		if err != nil {
			addIssue(field, models.IssueMalformedNumber, "%s %q is not a number, ignored", field, v.Raw)
			return decimal.NullDecimal{}
		}
		if !d.IsPositive() {
			addIssue(field, models.IssueNonPositiveValue, "%s must be positive, got %s", field, d.String())
		}
		return decimal.NewNullDecimal(d)
	}

	trade.EntryPrice = requiredDecimal("entry_price", raw.EntryPrice)
	trade.PositionSize = requiredDecimal("position_size", raw.PositionSize)
	trade.ExitPrice = optionalDecimal("exit_price", raw.ExitPrice)
	trade.StopLoss = optionalDecimal("stop_loss", raw.StopLoss)
	trade.TakeProfit = optionalDecimal("take_profit", raw.TakeProfit)

	if raw.ExitTime.Present {
		exitTime, err := parseTime(raw.ExitTime, n.location())
		if err != nil {
			addIssue("exit_time", models.IssueMalformedTime, "exit_time %q is not a valid time, ignored", raw.ExitTime.Raw)
		} else {
			trade.ExitTime = &exitTime
		}
	}

	// P&L: явный, иначе рассчитанный по ценам
	explicitPnl := false
	if raw.ProfitLoss.Present {
		pnl, err := parseDecimal(raw.ProfitLoss)
		if err != nil {
			addIssue("profit_loss", models.IssueMalformedNumber, "profit_loss %q is not a number", raw.ProfitLoss.Raw)
		} else {
			trade.ProfitLoss = pnl
			explicitPnl = true
		}
	}
	if !explicitPnl {
		if pnl, ok := trade.ExpectedPNL(); ok {
			trade.ProfitLoss = pnl
			addIssue("profit_loss", models.IssueDerivedPnl, "profit_loss derived from prices: %s", pnl.String())
		}
	}

	// Outcome: регистр не важен, неизвестное значение игнорируется
	if raw.Outcome.Present {
		if o, ok := parseOutcome(raw.Outcome.Raw); ok {
			trade.Outcome = o
		} else {
			addIssue("outcome", models.IssueUnknownOutcome, "outcome %q is not one of win, loss, breakeven", raw.Outcome.Raw)
		}
	}

	// Статус: закрыта, если есть цена выхода или явный P&L
	trade.Status = models.TradeStatusOpen
	if trade.ExitPrice.Valid || explicitPnl {
		trade.Status = models.TradeStatusClosed
	}
	if strings.EqualFold(raw.Status.Raw, string(models.TradeStatusOpen)) && !trade.ExitPrice.Valid {
		trade.Status = models.TradeStatusOpen
	}

	trade.SetupType = raw.SetupType.Raw
	if runes := []rune(trade.SetupType); len(runes) > utils.MaxSetupTypeLength {
		trade.SetupType = string(runes[:utils.MaxSetupTypeLength])
		addIssue("setup_type", models.IssueTruncatedValue, "setup_type is longer than %d characters, truncated", utils.MaxSetupTypeLength)
	}
	trade.Notes = raw.Notes.Raw

	return trade, issues, nil
}

// NormalizeStrict нормализует запись для ручного ввода сделки.
//
// Любая проблема, кроме рассчитанного по ценам P&L, превращается в ошибку
// валидации. Дополнительно проверяется exit_time >= entry_time.
func (n Normalizer) NormalizeStrict(raw RawTrade) (models.Trade, error) {
	trade, issues, err := n.Normalize(0, raw)
	if err != nil {
		var errs utils.ValidationErrors
		errs.Add("trade", err.Error())
		return models.Trade{}, errs
	}

	var errs utils.ValidationErrors
	for _, is := range issues {
		if is.Kind == models.IssueDerivedPnl {
			continue
		}
		errs.Add(is.Field, is.Message)
	}
	errs.AddError("symbol", utils.ValidateSymbol(trade.Symbol))
	if !trade.HasValidTiming() {
		errs.Add("exit_time", "exit_time must not be before entry_time")
	}
	if trade.ExitTime != nil && !trade.ExitPrice.Valid {
		errs.Add("exit_price", "exit_price is required when exit_time is set")
	}

	if err := errs.Err(); err != nil {
		return models.Trade{}, err
	}
	return trade, nil
}

// Batch результат нормализации набора записей
type Batch struct {
	Trades   []models.Trade     `json:"-"`
	Issues   []models.DataIssue `json:"issues"`
	Rejected []RejectedRecord   `json:"rejected"`
}

// RejectedRecord запись, отклоненная из-за фатальной ошибки
type RejectedRecord struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// NormalizeBatch нормализует набор записей в нестрогом режиме.
// Фатальные ошибки не прерывают обработку: запись попадает в Rejected.
func (n Normalizer) NormalizeBatch(raws []RawTrade) Batch {
	b := Batch{
		Trades:   make([]models.Trade, 0, len(raws)),
		Issues:   []models.DataIssue{},
		Rejected: []RejectedRecord{},
	}

	for i, raw := range raws {
		trade, issues, err := n.Normalize(i, raw)
		if err != nil {
			b.Rejected = append(b.Rejected, RejectedRecord{Index: i, Reason: err.Error()})
			continue
		}
		b.Trades = append(b.Trades, trade)
		b.Issues = append(b.Issues, issues...)
	}
	return b
}

// ToRaw переводит сделку обратно в RawTrade (для частичного обновления)
func ToRaw(t models.Trade) RawTrade {
	raw := RawTrade{
		Symbol:       Loose(t.Symbol),
		Direction:    Loose(string(t.Direction)),
		Status:       Loose(string(t.Status)),
		EntryPrice:   Loose(t.EntryPrice.String()),
		PositionSize: Loose(t.PositionSize.String()),
		EntryTime:    Loose(t.EntryTime.Format(time.RFC3339Nano)),
		Outcome:      Loose(string(t.Outcome)),
		ProfitLoss:   Loose(t.ProfitLoss.String()),
		SetupType:    Loose(t.SetupType),
		Notes:        Loose(t.Notes),
		Tags:         append([]string(nil), t.Tags...),
	}
	if t.ID != 0 {
		raw.ID = LooseValue{Raw: strconv.FormatInt(t.ID, 10), Present: true}
	}
	if t.ExitPrice.Valid {
		raw.ExitPrice = Loose(t.ExitPrice.Decimal.String())
	}
	if t.StopLoss.Valid {
		raw.StopLoss = Loose(t.StopLoss.Decimal.String())
	}
	if t.TakeProfit.Valid {
		raw.TakeProfit = Loose(t.TakeProfit.Decimal.String())
	}
	if t.ExitTime != nil {
		raw.ExitTime = Loose(t.ExitTime.Format(time.RFC3339Nano))
	}
	// P&L открытой сделки не является явным
	if t.Status == models.TradeStatusOpen {
		raw.ProfitLoss = LooseValue{}
	}
	return raw
}

// Merge накладывает заданные поля patch на base.
//
// Если patch меняет цены, размер или направление, но не задает profit_loss и
// outcome, они сбрасываются и будут пересчитаны по новым ценам.
func Merge(base, patch RawTrade) RawTrade {
	repriced := patch.EntryPrice.Present || patch.ExitPrice.Present ||
		patch.PositionSize.Present || patch.Direction.Present

	merged := base
	overlay := func(dst *LooseValue, src LooseValue) {
		if src.Present {
			*dst = src
		}
	}
	overlay(&merged.Symbol, patch.Symbol)
	overlay(&merged.Direction, patch.Direction)
	overlay(&merged.Status, patch.Status)
	overlay(&merged.EntryPrice, patch.EntryPrice)
	overlay(&merged.ExitPrice, patch.ExitPrice)
	overlay(&merged.PositionSize, patch.PositionSize)
	overlay(&merged.StopLoss, patch.StopLoss)
	overlay(&merged.TakeProfit, patch.TakeProfit)
	overlay(&merged.EntryTime, patch.EntryTime)
	overlay(&merged.ExitTime, patch.ExitTime)
	overlay(&merged.SetupType, patch.SetupType)
	overlay(&merged.Notes, patch.Notes)

	if repriced && !patch.ProfitLoss.Present {
		merged.ProfitLoss = LooseValue{}
	} else {
		overlay(&merged.ProfitLoss, patch.ProfitLoss)
	}
	if repriced && !patch.Outcome.Present {
		merged.Outcome = LooseValue{}
	} else {
		overlay(&merged.Outcome, patch.Outcome)
	}
	if patch.Tags != nil {
		merged.Tags = patch.Tags
	}
	return merged
}

func (n Normalizer) location() *time.Location {
	if n.Location == nil {
		return time.UTC
	}
	return n.Location
}

// ============================================================
// Разбор значений
// ============================================================

func parseDirection(s string) (models.Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return models.DirectionLong, true
	case "short", "sell":
		return models.DirectionShort, true
	default:
		return "", false
	}
}

func parseOutcome(s string) (models.Outcome, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "win", "won", "profit":
		return models.OutcomeWin, true
	case "loss", "lose", "lost":
		return models.OutcomeLoss, true
	case "breakeven", "break-even", "break_even", "be", "even":
		return models.OutcomeBreakeven, true
	default:
		return "", false
	}
}

// parseDecimal разбирает число, допуская "$", "," и пробелы
func parseDecimal(v LooseValue) (decimal.Decimal, error) {
	s := strings.NewReplacer("$", "", ",", "", " ", "").Replace(v.Raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty number")
	}
	return decimal.NewFromString(s)
}

// layouts поддерживаемые строковые форматы дат
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTime разбирает дату из строки, unix-числа или объекта {seconds, nanoseconds}.
// Результат должен попадать в годы 1..9999.
func parseTime(v LooseValue, loc *time.Location) (time.Time, error) {
	t, err := parseTimeValue(v, loc)
	if err != nil {
		return time.Time{}, err
	}
	if y := t.Year(); y < 1 || y > 9999 {
		return time.Time{}, fmt.Errorf("time %q is out of range", v.Raw)
	}
	return t, nil
}

func parseTimeValue(v LooseValue, loc *time.Location) (time.Time, error) {
	raw := v.Raw

	if !v.Quoted && strings.HasPrefix(raw, "{") {
		var ts struct {
			Seconds     *int64 `json:"seconds"`
			Nanoseconds int64  `json:"nanoseconds"`
			USeconds    *int64 `json:"_seconds"`
			UNanos      int64  `json:"_nanoseconds"`
		}
		if err := json.Unmarshal([]byte(raw), &ts); err != nil {
			return time.Time{}, err
		}
		switch {
		case ts.Seconds != nil:
			return time.Unix(*ts.Seconds, ts.Nanoseconds).UTC(), nil
		case ts.USeconds != nil:
			return time.Unix(*ts.USeconds, ts.UNanos).UTC(), nil
		default:
			return time.Time{}, fmt.Errorf("timestamp object without seconds")
		}
	}

	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return fromUnix(f)
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	for _, layout := range layouts[1:] {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format %q", raw)
}

// maxUnixMillis конец 9999 года в миллисекундах
const maxUnixMillis = 253402300799999

// fromUnix различает секунды и миллисекунды по величине
func fromUnix(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxUnixMillis {
		return time.Time{}, fmt.Errorf("unix time %v is out of range", f)
	}
	if math.Abs(f) >= 1e11 {
		return utils.FromUnixMillis(int64(f)), nil
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}
