package guard

// Rule is a named, case-insensitive pattern evaluated against an inbound
// message. Rules are evaluated in slice order and the first match wins.
type Rule struct {
	Name    string
	Pattern string
}

// DefaultInjectionRules returns the built-in injection rule set. The set is
// bilingual (pt-BR and English) because users mix both. It is replaceable
// through configuration; nothing in the matcher depends on these literals.
func DefaultInjectionRules() []Rule {
	return []Rule{
		// Attempts to change the assistant's role.
		{Name: "role_override_pt", Pattern: `(você é|você agora é|seja|atue como|comporte-se como|finja ser|você deve ser|assuma o papel)`},
		{Name: "role_override_en", Pattern: `(you are|you are now|act as|behave as|pretend to be|you must be|assume the role)`},

		// Attempts to discard prior instructions.
		{Name: "instruction_override_pt", Pattern: `(ignore|esqueça|desconsidere).{0,30}(instruções|instrução|prompt|sistema|regras|anterior)`},
		{Name: "instruction_override_en", Pattern: `(ignore|forget|disregard).{0,30}(instructions|instruction|prompt|system|rules|previous)`},

		// Attempts to exfiltrate the system prompt.
		{Name: "prompt_exfiltration_pt", Pattern: `(mostre|exiba|revele|qual é|me diga).{0,30}(prompt|instruções do sistema|system prompt)`},
		{Name: "prompt_exfiltration_en", Pattern: `(show|display|reveal|what is|tell me).{0,30}(prompt|system instructions|system prompt)`},

		// Attempts to run commands.
		{Name: "command_execution", Pattern: `(execute|rode|run|eval|system|shell|bash|cmd|powershell)`},

		// Requests for unrelated personas.
		{Name: "unrelated_persona_pt", Pattern: `(chef|cozinheiro|médico|advogado|professor|engenheiro|cientista|psicólogo|terapeuta)`},
		{Name: "unrelated_persona_en", Pattern: `(doctor|lawyer|teacher|engineer|scientist|psychologist|therapist|cook)`},

		// Discourse-based bypasses.
		{Name: "discourse_bypass", Pattern: `(mas primeiro|but first|antes disso|before that|no entanto|however|na verdade|actually)`},

		// Raw control-token markers.
		{Name: "control_tokens", Pattern: `\[SYSTEM\]|\[INST\]|\[/INST\]|<\|system\|>|<\|user\|>|<\|assistant\|>`},
	}
}

// DefaultDomainKeywords returns the built-in sales vocabulary used by the
// relevance gate. A message must contain at least one of these (or qualify
// as a short generic greeting) to be admitted.
func DefaultDomainKeywords() []string {
	return []string{
		"venda", "vendas", "vendi", "faturamento", "receita", "produto", "produtos",
		"semana", "mês", "dia", "hoje", "ontem", "período", "estatística", "estatísticas",
		"ticket médio", "total", "comparar", "comparação", "melhor", "pior",
		"quanto", "quantas", "valor", "valores", "dinheiro", "real", "reais",
		"cliente", "clientes", "pagamento", "pix", "crédito", "débito",
		"maquininha", "moderninha", "link de pagamento", "qr code",
		"sales", "revenue", "product", "week", "month", "day", "statistics",
	}
}

// DefaultGreetingWords returns the phrases that allow a short generic
// message (greetings, help requests) through the relevance gate even though
// it carries no domain keyword.
func DefaultGreetingWords() []string {
	return []string{"olá", "oi", "ajuda", "help", "o que", "what", "como", "how"}
}
