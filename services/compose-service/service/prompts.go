package service

import "fmt"

// AnalyzePrompt accompanies the inspiration image on the first chat turn.
const AnalyzePrompt = `IMAGE 1/2 - REFERENCE (use only the background/scenery)
This is the reference photo. Use only its scenery/background as inspiration: environment, colors, style, lighting, depth and mood.
Do not change any person in this photo and do not generate the final image yet.
Reply only by confirming you understood the background style and describe, in 3-6 bullets, what you will replicate.
Then ask for IMAGE 2/2.`

// ComposePrompt accompanies the personal photo on the second chat turn.
const ComposePrompt = `IMAGE 2/2 - MY PHOTO (keep 100% intact)
This is my photo. Keep it EXACTLY as it is: face, body, skin, hair, clothes, pose, accessories, expression and framing. Everything identical, no retouching, no "beautifying", no change in proportions, nothing added or removed.

Task: replace ONLY the background/scenery so it resembles the one in IMAGE 1/2.

Mandatory rules:
* Never modify the subject (me).
* Do not change clothing or skin colors, face sharpness or body shape.
* Adjust only background lighting (and background shadows) so it looks natural, as if the photo had been taken in that environment.
* Keep perspective and depth, including blur if present.
* If the scenery conflicts with preserving my body, preserving my body intact wins.

Deliverable: generate the final image with the background replaced.`

// EditPrompt is sent with both images in a single edit request.
const EditPrompt = `The first image is a personal photo, the second is a reference scene.
Replace only the background of the first image with a scene inspired by the second image: environment, colors, style, lighting, depth and mood.

` + preservationRules

const preservationRules = `CRITICAL RULES:
- Keep the person EXACTLY as they are: face, body, skin, hair, clothes, pose, accessories, expression and framing all identical
- Only change the background/scenery to match the reference style
- Adjust only background lighting and shadows to look natural and coherent
- Maintain perspective and depth of field
- If there is any conflict between scene and person preservation, preserving the person intact always wins`

// FallbackPrompt builds the single-shot synthesis prompt used when the chat
// exchange returned no image.
func FallbackPrompt(analysis string) string {
	return fmt.Sprintf(`Based on this style analysis of the reference background: %s

Generate an image that takes the person from the provided photo and places them in a background/scene inspired by the reference photo.

%s`, analysis, preservationRules)
}
