// Package vision analyzes captured stills with Google Gemini.
//
// Each analysis intent carries its own prompt. The prompts ask for a
// conversational answer because the text is spoken back to a user who cannot
// see the image.
package vision

import "fmt"

// Intent selects what the analysis should look for in the image.
type Intent string

const (
	// IntentCash identifies banknotes and their denominations.
	IntentCash Intent = "cash"

	// IntentItem describes the item being held up.
	IntentItem Intent = "item"

	// IntentPackaging reads label and packaging text, allergens first.
	IntentPackaging Intent = "packaging"
)

// Prompt returns the analysis prompt for the intent.
func (i Intent) Prompt() (string, error) {
	switch i {
	case IntentCash:
		return banknotePrompt, nil
	case IntentItem:
		return itemPrompt, nil
	case IntentPackaging:
		return packagingPrompt, nil
	default:
		return "", fmt.Errorf("vision: unknown intent %q", string(i))
	}
}

const banknotePrompt = `Analyze this image and identify all banknotes/paper currency visible.

For each banknote you can see, provide:
1. The denomination (e.g., £20, $50, €10)
2. The currency name (e.g., British Pound Sterling, US Dollar, Euro)
3. Any notable features visible (e.g., "polymer note", "showing the Queen's portrait side")

If multiple notes are visible:
- List each one separately
- Provide the total value at the end

Format your response conversationally, as if speaking to someone who cannot see the image.
For example: "I can see a twenty pound note, it's a polymer note showing the Queen's portrait. That's twenty pounds total."

If no banknotes are visible in the image, say: "I don't see any banknotes in this image. Please hold the notes in front of the camera and try again."

If the image is blurry or unclear, mention that and suggest adjustments.`

const itemPrompt = `Give a very detailed description of the item shown in the image.
Include anything that could be beneficial like brands or logos and sizes of the item.
Describe colors, shapes, text, objects, and any other relevant details.

Format your response conversationally, as if speaking to someone who cannot see the image.
Lead with what the item is, then the details that matter most.

If no distinct item is visible, say: "I can't make out a specific item in this image. Please hold it closer to the camera and try again."

If the image is blurry or unclear, mention that and suggest adjustments.`

const packagingPrompt = `Analyze this image and read all text visible on the packaging, label, or box.

Focus on identifying and clearly stating:

1. PRODUCT NAME - What is this product called?
2. KEY INFORMATION based on product type:
   - For FOOD: List ingredients, allergens (VERY IMPORTANT - call these out clearly),
     nutritional info, cooking instructions, serving suggestions
   - For MEDICATION: Drug name, dosage, active ingredients, warnings,
     how to take it, what it's for
   - For OTHER PRODUCTS: Main purpose, instructions for use, warnings

3. EXPIRY DATE - If visible, mention when this expires

4. ALLERGEN WARNINGS - Call out any allergy information prominently
   (e.g., "CONTAINS: wheat, milk, eggs" or "May contain traces of nuts")

Format your response conversationally, as if speaking to someone who cannot see the label.
Be thorough but organized - read the most important information first.

If the image is blurry or text is not readable, say so and suggest adjustments.
If no packaging or labels are visible, say: "I don't see any packaging or labels in this image. Please hold the item closer to the camera."`
