package config

import "github.com/BTreeMap/WinBackBot/internal/models"

// Default model settings
const (
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 300
)

// defaultSystemPromptTemplate is rendered with the Business section.
const defaultSystemPromptTemplate = `
Você é o assistente virtual do {{.Name}}.
Você é simpático, objetivo e fala português brasileiro informal.

SOBRE O NEGÓCIO:
- {{.Description}}
- Horário: {{.Hours}}
- Endereço: {{.Contact.Address}}

CARDÁPIO DE HOJE (exemplo):
{{range .Menu}}- {{.}}
{{end}}
DELIVERY:
- Pedido mínimo: R${{printf "%.2f" .Delivery.MinOrder}}
- Taxa de entrega: R${{printf "%.2f" .Delivery.Fee}}
- Tempo estimado: {{.Delivery.EstimatedTime}}
- Área de entrega: {{.Delivery.Area}}

REGRAS:
1. Seja sempre simpático e use emojis com moderação
2. Se perguntarem sobre preços, informe os do cardápio
3. Para pedidos de delivery, colete: nome, endereço e itens do pedido
4. Se não souber responder algo, diga que vai verificar e peça para aguardar
5. Não invente informações que não estão acima
`

// Default returns the built-in configuration of the reference restaurant.
func Default() Config {
	return Config{
		Business: Business{
			Name:        "Restaurante Sabor Caseiro",
			Type:        "restaurante",
			Description: "Restaurante de prato feito, presencial e delivery",
			Hours:       "todos os dias das 10h às 15h",
			Services: []string{
				"Prato feito no salão (presencial)",
				"Delivery de prato feito",
			},
			Menu: []string{
				"Frango grelhado com arroz, feijão e salada - R$22",
				"Carne assada com macarrão e legumes - R$25",
				"Peixe frito com arroz e pirão - R$28",
				"Opção vegetariana com arroz, feijão e legumes - R$18",
			},
			Delivery: Delivery{
				MinOrder:      15.00,
				Fee:           5.00,
				EstimatedTime: "40 a 60 minutos",
				Area:          "até 5km do restaurante",
			},
			Contact: Contact{
				Address:  "Rua das Flores, 123 - Recife, PE",
				WhatsApp: "+5581999999999",
			},
		},
		Campaign: Campaign{
			Tiers: []models.CampaignTier{
				{
					ThresholdDays: 14,
					MessageTemplate: "Olá, {name}! 😊 Faz um tempinho que você não nos visita...\n\n" +
						"Sentimos sua falta! Use o cupom *VOLTA10* e ganhe " +
						"*10% de desconto* no seu próximo pedido! 🍽️\n\n" +
						"Válido por 7 dias. Estamos abertos todos os dias das 10h às 15h!",
				},
				{
					ThresholdDays: 30,
					MessageTemplate: "Oi, {name}! 🌟 Há um mês sem novidades suas por aqui...\n\n" +
						"Preparamos um presente especial: use *SAUDADE20* e ganhe " +
						"*20% de desconto* + *sobremesa grátis*! 🍮\n\n" +
						"Corre que é só até domingo!",
				},
				{
					ThresholdDays: 60,
					MessageTemplate: "Oi, {name}! Já faz 2 meses... 😢\n\n" +
						"Renovamos o cardápio e queremos te surpreender!\n" +
						"Use *VOLTEI30* e ganhe *30% de desconto* no delivery " +
						"ou no salão. Frete grátis também! 🛵✨\n\n" +
						"Válido esta semana!",
				},
			},
		},
		AI: AI{
			Model:     DefaultModel,
			MaxTokens: DefaultMaxTokens,
		},
	}
}
