package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vendabot/vendabot/internal/logger"
	"github.com/vendabot/vendabot/internal/sales"
)

var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

// salesTool is the common shape of the analytics tools: a name, a routing
// description, an argument schema and a handler over the query port.
type salesTool struct {
	name        string
	description string
	params      json.RawMessage
	run         func(ctx context.Context, args string) (string, error)
}

func (t *salesTool) Name() string                { return t.name }
func (t *salesTool) Description() string         { return t.description }
func (t *salesTool) Parameters() json.RawMessage { return t.params }

func (t *salesTool) Run(ctx context.Context, args string) (string, error) {
	logger.For("tools").Debug("sales tool invoked", "tool", t.name, "args", args)
	return t.run(ctx, args)
}

// NewSalesTools builds the full analytics tool set over q. Date windows are
// computed from now at call time, which tests replace with a fixed clock.
func NewSalesTools(q sales.Queries, now func() time.Time) []Tool {
	if now == nil {
		now = time.Now
	}
	return []Tool{
		newSalesToday(q, now),
		newSalesYesterday(q, now),
		newSalesLastWeek(q, now),
		newSalesLastMonth(q, now),
		newBestSellingProduct(q, now),
		newComparePeriods(q, now),
		newStatistics(q, now),
	}
}

func newSalesToday(q sales.Queries, now func() time.Time) Tool {
	return &salesTool{
		name:        "sales_today",
		description: "Obtém o total de vendas e faturamento do dia de hoje.",
		params:      emptySchema,
		run: func(ctx context.Context, _ string) (string, error) {
			n := now()
			stats, err := q.StatisticsInRange(ctx, dayStart(n), n)
			if err != nil {
				return "", err
			}
			if stats.TotalCount == 0 {
				return "Ainda não há vendas registradas hoje.", nil
			}
			return fmt.Sprintf("Vendas de hoje: %d vendas, faturamento de %s, ticket médio de %s",
				stats.TotalCount, formatMoney(stats.TotalRevenue), formatMoney(stats.AverageTicket)), nil
		},
	}
}

func newSalesYesterday(q sales.Queries, now func() time.Time) Tool {
	return &salesTool{
		name:        "sales_yesterday",
		description: "Obtém o total de vendas e faturamento de ontem.",
		params:      emptySchema,
		run: func(ctx context.Context, _ string) (string, error) {
			yesterday := now().AddDate(0, 0, -1)
			stats, err := q.StatisticsInRange(ctx, dayStart(yesterday), dayEnd(yesterday))
			if err != nil {
				return "", err
			}
			if stats.TotalCount == 0 {
				return "Não houve vendas ontem.", nil
			}
			return fmt.Sprintf("Vendas de ontem: %d vendas, faturamento de %s, ticket médio de %s",
				stats.TotalCount, formatMoney(stats.TotalRevenue), formatMoney(stats.AverageTicket)), nil
		},
	}
}

func newSalesLastWeek(q sales.Queries, now func() time.Time) Tool {
	return &salesTool{
		name:        "sales_last_week",
		description: "SEMPRE use esta função quando o usuário perguntar sobre 'semana passada', 'últimos 7 dias' ou 'faturamento da semana'. Retorna vendas e faturamento dos últimos 7 dias.",
		params:      emptySchema,
		run:         trailingWindowRun(q, now, 7),
	}
}

func newSalesLastMonth(q sales.Queries, now func() time.Time) Tool {
	return &salesTool{
		name:        "sales_last_month",
		description: "SEMPRE use esta função quando o usuário perguntar sobre 'mês passado', 'últimos 30 dias' ou 'faturamento do mês'. Retorna vendas e faturamento dos últimos 30 dias.",
		params:      emptySchema,
		run:         trailingWindowRun(q, now, 30),
	}
}

// trailingWindowRun answers the fixed trailing windows. These always return
// statistics, zero-filled when the window is empty.
func trailingWindowRun(q sales.Queries, now func() time.Time, days int) func(context.Context, string) (string, error) {
	return func(ctx context.Context, _ string) (string, error) {
		start, end := trailingDays(now(), days)
		stats, err := q.StatisticsInRange(ctx, start, end)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Vendas dos últimos %d dias: %d vendas, faturamento total de %s, ticket médio de %s",
			days, stats.TotalCount, formatMoney(stats.TotalRevenue), formatMoney(stats.AverageTicket)), nil
	}
}

func newBestSellingProduct(q sales.Queries, now func() time.Time) Tool {
	return &salesTool{
		name:        "best_selling_product",
		description: "Obtém o produto mais vendido em um período. Use 'last_week' para a última semana ou 'last_month' para o último mês.",
		params:      json.RawMessage(`{"type":"object","properties":{"period":{"type":"string","enum":["last_week","last_month"],"description":"Período: 'last_week' ou 'last_month'"}}}`),
		run: func(ctx context.Context, args string) (string, error) {
			var in struct {
				Period string `json:"period"`
			}
			if err := parseArgs(args, &in); err != nil {
				return "", err
			}

			days := 7
			periodText := "dos últimos 7 dias"
			if strings.ToLower(in.Period) == "last_month" {
				days = 30
				periodText = "dos últimos 30 dias"
			}

			start, end := trailingDays(now(), days)
			product, err := q.BestProductInRange(ctx, start, end)
			if err != nil {
				return "", err
			}
			if product == "" {
				return "Não há dados de vendas para o período solicitado.", nil
			}
			return fmt.Sprintf("O produto mais vendido %s é: %s", periodText, product), nil
		},
	}
}

func newComparePeriods(q sales.Queries, now func() time.Time) Tool {
	return &salesTool{
		name:        "compare_periods",
		description: "Compara vendas entre dois períodos para identificar melhora ou piora. Compara a semana atual com a anterior ou o mês atual com o anterior.",
		params:      json.RawMessage(`{"type":"object","properties":{"type":{"type":"string","enum":["weekly","monthly"],"description":"Tipo de comparação: 'weekly' para semanal ou 'monthly' para mensal"}}}`),
		run: func(ctx context.Context, args string) (string, error) {
			var in struct {
				Type string `json:"type"`
			}
			if err := parseArgs(args, &in); err != nil {
				return "", err
			}

			days := 7
			periodText := "semana"
			if strings.ToLower(in.Type) == "monthly" {
				days = 30
				periodText = "mês"
			}

			currentStart, currentEnd := trailingDays(now(), days)
			previousStart, previousEnd := precedingWindow(currentStart, days)

			cmp, err := q.Compare(ctx, currentStart, currentEnd, previousStart, previousEnd)
			if err != nil {
				return "", err
			}

			trend, emoji := "se mantiveram estáveis", "➡️"
			switch {
			case cmp.ChangePercentage > 0:
				trend, emoji = "MELHORARAM", "📈"
			case cmp.ChangePercentage < 0:
				trend, emoji = "PIORARAM", "📉"
			}

			upper := strings.ToUpper(periodText)
			return fmt.Sprintf(`%s Suas vendas %s!

%s ATUAL:
- %d vendas
- Faturamento: %s
- Ticket médio: %s

%s ANTERIOR:
- %d vendas
- Faturamento: %s
- Ticket médio: %s

Variação: %s`,
				emoji, trend,
				upper, cmp.Current.TotalCount, formatMoney(cmp.Current.TotalRevenue), formatMoney(cmp.Current.AverageTicket),
				upper, cmp.Previous.TotalCount, formatMoney(cmp.Previous.TotalRevenue), formatMoney(cmp.Previous.AverageTicket),
				formatPercent(cmp.ChangePercentage)), nil
		},
	}
}

func newStatistics(q sales.Queries, now func() time.Time) Tool {
	return &salesTool{
		name:        "statistics",
		description: "Obtém estatísticas detalhadas de vendas para um período específico em dias (ex: 7 para a última semana, 30 para o último mês).",
		params:      json.RawMessage(`{"type":"object","properties":{"days_ago":{"type":"integer","description":"Número de dias atrás para começar a análise","default":7}}}`),
		run: func(ctx context.Context, args string) (string, error) {
			var in struct {
				DaysAgo *int `json:"days_ago"`
			}
			if err := parseArgs(args, &in); err != nil {
				return "", err
			}

			days := 7
			if in.DaysAgo != nil {
				if *in.DaysAgo <= 0 {
					return "", fmt.Errorf("days_ago must be a positive integer, got %d", *in.DaysAgo)
				}
				days = *in.DaysAgo
			}

			start, end := trailingDays(now(), days)
			stats, err := q.StatisticsInRange(ctx, start, end)
			if err != nil {
				return "", err
			}
			if stats.TotalCount == 0 {
				return fmt.Sprintf("Não há vendas registradas nos últimos %d dias.", days), nil
			}

			best := stats.BestProduct
			if best == "" {
				best = "N/A"
			}
			return fmt.Sprintf(`📊 Estatísticas dos últimos %d dias:

💰 Total de vendas: %d
💵 Faturamento: %s
🎯 Ticket médio: %s
⭐ Produto mais vendido: %s`,
				days, stats.TotalCount, formatMoney(stats.TotalRevenue), formatMoney(stats.AverageTicket), best), nil
		},
	}
}

// parseArgs unmarshals the model-provided arguments, tolerating the empty
// string the provider sends for tools without parameters.
func parseArgs(args string, v any) error {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("parse tool arguments: %w", err)
	}
	return nil
}
