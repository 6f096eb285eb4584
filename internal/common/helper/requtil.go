package helper

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	beegocontext "github.com/beego/beego/v2/server/web/context"
)

// IsJSONContentType 判断是否为 JSON 请求
func IsJSONContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.Contains(ct, "json")
}

// 金额格式校验：非负，最多两位小数（预编译正则）
var moneyRe = regexp.MustCompile(`^(?:0|[1-9]\d*)(?:\.\d{1,2})?$`)

// IsMoneyFormat 判断金额格式
func IsMoneyFormat(s string) bool {
	return moneyRe.MatchString(strings.TrimSpace(s))
}

// 默认输入保护参数
const (
	defaultJSONMaxBytes int64         = 1 << 20 // 1MB
	defaultParseTimeout time.Duration = 1 * time.Second
)

type deadlineReader struct {
	r        io.Reader
	deadline time.Time
}

func (dr *deadlineReader) Read(p []byte) (int, error) {
	if time.Now().After(dr.deadline) {
		return 0, fmt.Errorf("read timeout")
	}
	return dr.r.Read(p)
}

// jsonBodyReader 在 JSON 分支下为请求体增加大小限制与解析超时保护
func jsonBodyReader(ctx *beegocontext.Context) io.Reader {
	lr := io.LimitReader(ctx.Request.Body, defaultJSONMaxBytes)
	return &deadlineReader{r: lr, deadline: time.Now().Add(defaultParseTimeout)}
}

// GetTraceID 统一提取 trace_id：优先从中间件注入的数据取，其次从常见请求头降级
func GetTraceID(ctx *beegocontext.Context) string {
	if v := ctx.Input.GetData("trace_id"); v != nil {
		return fmt.Sprint(v)
	}
	if h := strings.TrimSpace(ctx.Input.Header("X-Trace-ID")); h != "" {
		return h
	}
	if h := strings.TrimSpace(ctx.Input.Header("Trace-Id")); h != "" {
		return h
	}
	return ""
}

// parseByContentType 按 Content-Type 选择解析函数，减少重复 if/else 分支
func parseByContentType[T any](ctx *beegocontext.Context,
	jsonParser func(io.Reader) (T, bool, string),
	formParser func(*beegocontext.Context) (T, bool, string),
) (T, bool, string) {
	ct := ctx.Input.Header("Content-Type")
	if IsJSONContentType(ct) {
		return jsonParser(jsonBodyReader(ctx))
	}
	return formParser(ctx)
}

// BetParsed 为解析后的投注入参（与控制器/服务层解耦）
type BetParsed struct {
	RoundID        string `json:"round_id"`
	Selection      string `json:"selection"`
	Stake          string `json:"stake"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ParseBetFromJSON 解析 JSON 到 BetParsed。失败返回 false 与错误消息。
func ParseBetFromJSON(r io.Reader) (BetParsed, bool, string) {
	var out BetParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return BetParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

// ParseBetFromForm 从表单读取字段，返回 BetParsed。
func ParseBetFromForm(ctx *beegocontext.Context) (BetParsed, bool, string) {
	var out BetParsed
	out.RoundID = strings.TrimSpace(ctx.Input.Query("round_id"))
	out.Selection = strings.TrimSpace(ctx.Input.Query("selection"))
	out.Stake = strings.TrimSpace(ctx.Input.Query("stake"))
	out.IdempotencyKey = strings.TrimSpace(ctx.Input.Query("idempotency_key"))
	return out, true, ""
}

// ValidateBet 对通用字段做二次校验（适用于 JSON 与 FORM）。失败返回 false 与错误消息。
func ValidateBet(in *BetParsed) (bool, string) {
	if in.RoundID == "" || in.Selection == "" || strings.TrimSpace(in.Stake) == "" || in.IdempotencyKey == "" {
		return false, "missing required fields: round_id/selection/stake/idempotency_key"
	}
	// 额外长度保护，避免异常超长输入
	if len(in.RoundID) > 64 || len(in.Selection) > 32 || len(in.IdempotencyKey) > 64 || len(in.Stake) > 32 {
		return false, "invalid request"
	}
	if !IsMoneyFormat(in.Stake) {
		return false, "stake must be numeric with up to 2 decimals"
	}
	return true, ""
}

// ParseAndValidateBet 按 Content-Type 自动解析并做统一校验
func ParseAndValidateBet(ctx *beegocontext.Context) (BetParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseBetFromJSON, ParseBetFromForm)
	if !ok {
		return BetParsed{}, false, msg
	}
	if ok, msg := ValidateBet(&out); !ok {
		return BetParsed{}, false, msg
	}
	return out, true, ""
}

// -------- 管理接口 helpers --------

// OverrideParsed 人工干预入参
type OverrideParsed struct {
	RoundID     string `json:"round_id"`
	Operator    string `json:"operator"`
	WinningSide string `json:"winning_side"` // andar_bahar
	Number      *int   `json:"number"`       // roulette
	Dice        []int  `json:"dice"`         // sicbo
}

func ParseOverrideFromJSON(r io.Reader) (OverrideParsed, bool, string) {
	var out OverrideParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return OverrideParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

func ParseOverrideFromForm(ctx *beegocontext.Context) (OverrideParsed, bool, string) {
	var out OverrideParsed
	out.RoundID = strings.TrimSpace(ctx.Input.Query("round_id"))
	out.Operator = strings.TrimSpace(ctx.Input.Query("operator"))
	out.WinningSide = strings.TrimSpace(ctx.Input.Query("winning_side"))
	if ns := strings.TrimSpace(ctx.Input.Query("number")); ns != "" {
		if n, err := strconv.Atoi(ns); err == nil {
			out.Number = &n
		}
	}
	if ds := strings.TrimSpace(ctx.Input.Query("dice")); ds != "" {
		for _, p := range strings.Split(ds, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
				out.Dice = append(out.Dice, n)
			}
		}
	}
	return out, true, ""
}

func ValidateOverride(in *OverrideParsed) (bool, string) {
	if in.RoundID == "" || in.Operator == "" {
		return false, "round_id and operator required"
	}
	if len(in.RoundID) > 64 || len(in.Operator) > 64 {
		return false, "invalid request"
	}
	if in.WinningSide == "" && in.Number == nil && len(in.Dice) == 0 {
		return false, "one of winning_side/number/dice required"
	}
	return true, ""
}

// ParseAndValidateOverride 按 Content-Type 自动解析并校验
func ParseAndValidateOverride(ctx *beegocontext.Context) (OverrideParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseOverrideFromJSON, ParseOverrideFromForm)
	if !ok {
		return OverrideParsed{}, false, msg
	}
	if ok, msg := ValidateOverride(&out); !ok {
		return OverrideParsed{}, false, msg
	}
	return out, true, ""
}

// CreateRoundParsed 开局入参
type CreateRoundParsed struct {
	GameType string `json:"game_type"`
}

func ParseCreateRoundFromJSON(r io.Reader) (CreateRoundParsed, bool, string) {
	var out CreateRoundParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return CreateRoundParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

func ParseCreateRoundFromForm(ctx *beegocontext.Context) (CreateRoundParsed, bool, string) {
	return CreateRoundParsed{GameType: strings.TrimSpace(ctx.Input.Query("game_type"))}, true, ""
}

// ParseAndValidateCreateRound 按 Content-Type 自动解析并校验
func ParseAndValidateCreateRound(ctx *beegocontext.Context) (CreateRoundParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseCreateRoundFromJSON, ParseCreateRoundFromForm)
	if !ok {
		return CreateRoundParsed{}, false, msg
	}
	if strings.TrimSpace(out.GameType) == "" {
		return CreateRoundParsed{}, false, "game_type required"
	}
	return out, true, ""
}
