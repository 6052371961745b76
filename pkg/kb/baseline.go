package kb

// Baseline returns the hardcoded reference corpus that is always
// included in assessment prompts, independent of the knowledge base.
func Baseline() string {
	return baselineReferences
}

const baselineReferences = `=== REFERENCE SOURCES FOR RISK ASSESSMENT ===

These sources provide authoritative context, statistics, and industry insights that should be referenced when evaluating IoT risk scenarios.

1. MARKET POTENTIAL & ECONOMIC IMPACT
   - By 2030, the IoT suppliers' market is expected to reach approximately $500 billion in a baseline scenario. If cybersecurity concerns are managed, the total addressable market could reach between $625 billion and $750 billion.

2. BUYER BEHAVIOR & ADOPTION DRIVERS
   - Approximately 40% of survey respondents indicated they would increase their IoT budget and deployment by 25% or more if cybersecurity concerns were resolved.
   - 61% of IoT buyers rank digital trust as a critical purchase element, whereas only 31% of IoT providers rank it as critical in system design.

3. CYBERSECURITY FRAMEWORK
   - IoT security requires expanding the traditional CIA (Confidentiality, Integrity, Availability) framework to six outcomes: data privacy and access, reliability and compliance, uptime and resilience.

4. INDUSTRY VERTICAL FOCUS AREAS
   - Automotive IoT: projected $100 billion by 2030; primary focus is availability (resilience and uptime) to prevent collisions and safety hazards.
   - Healthcare IoT: projected $70 billion by 2030; primary focus is confidentiality (patient privacy) and availability (data-driven care decisions).
   - Smart Cities IoT: projected $30 billion by 2030; primary focus is integrity (data reliability) due to multiple stakeholders.

5. VULNERABILITY LAYERS
   - According to the McKinsey B2B IoT Survey, IoT application software and human-machine interfaces are the most vulnerable layers of the IoT stack.

6. REAL-WORLD SECURITY INCIDENTS & CASE STUDIES
   a) Infrastructure attacks and physical safety:
      - Finland HVAC DDoS attack (2016): central heating systems entered a reboot loop and shut down for over a week during sub-zero temperatures, a critical availability and physical safety risk.
      - UK smart meter GCHQ intervention: concerns that universal SMETS 2 meters could be hacked to inflate bills, compromise data, or surge the National Grid.
   b) Remote control and harassment:
      - Ring camera hack (2019): a hacker harassed a child via a compromised camera's two-way audio; the breach exploited weak user credentials.
      - South Korea IP camera mass hack (2024): 120,000 private cameras compromised via simple passwords.
   c) Mass data breaches and systemic vulnerabilities:
      - Mirai botnet (2016): malware scanned for devices using default passwords (61 combinations), enslaving 600,000 devices for massive DDoS attacks.
      - Mars Hydro database leak: an unprotected database exposed 2.7 billion records including plaintext Wi-Fi passwords and API credentials.
      - iRobot Roomba image leak: development units captured images of users in private situations, which leaked via third-party data labelers.
   d) Legal compliance:
      - Fairhurst v Woodard (2021): a UK court ruled a homeowner violated privacy laws by recording audio beyond property boundaries with a smart doorbell.
   e) Protocol weaknesses:
      - BlueBorne (2017): eight Bluetooth flaws allowed device takeover without user interaction; 20 million Amazon Echo and Google Home devices were vulnerable.
   Key lessons: default passwords and weak authentication are systemic vulnerabilities; infrastructure attacks can cause physical harm; data breaches enable secondary attacks; cloud service reliability directly impacts device functionality and trust.

7. FIRMWARE & MANUFACTURING SECURITY
   - 83% of firms polled had at least one firmware attack in the last two years (Microsoft survey). Firmware is the most neglected area of device security.
   - Forensic analysis of D-Link DCS-5020L camera firmware found hardcoded usernames, passwords, SSL keys, IP addresses, and URLs in the extracted filesystem.

8. END-OF-LIFE RISKS
   - 45% of householders are unaware of fire risks from lithium-ion batteries in old devices; hoarding creates ignition risk from battery degradation.
   - Xiaomi Mi Robot collects Lidar maps and Wi-Fi passwords that survive factory reset, a severe data leakage risk on resale.

9. LACK OF CONTINUOUS UPDATES
   - Manufacturers stop providing security updates shortly after sale, leaving known vulnerabilities unfixed indefinitely (e.g., Amazon Echo 2nd Gen and Google Nest stopped receiving patches after 2-3 years).

=== END OF REFERENCE SOURCES ===`
